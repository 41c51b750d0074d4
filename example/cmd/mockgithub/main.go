// Standalone mock GitHub API for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockgithub
//
// Then in another terminal:
//
//	go run ./cmd/streampoll serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/streampoll/example/mockgithub"
)

func main() {
	fmt.Println("Mock GitHub API starting on :9999")
	fmt.Println("Each search query gains a new issue every 20-60 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := http.ListenAndServe(":9999", mockgithub.Handler(slog.Default())); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
