package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// watchingChunkSize caps the number of repo qualifiers per search query;
// GitHub rejects overly long queries.
const watchingChunkSize = 20

// Account is the user context system streams derive their queries from.
type Account struct {
	// Login is the GitHub user name.
	Login string

	// Teams are "org/team" slugs the user belongs to.
	Teams []string

	// Watching are "owner/name" repositories the user watches.
	Watching []string

	// Subscriptions are issue references "owner/name#number" the user
	// subscribed to.
	Subscriptions []string
}

func (a Account) teamQueries() []string {
	queries := make([]string, 0, len(a.Teams))
	for _, team := range a.Teams {
		queries = append(queries, "team:"+team)
	}
	return queries
}

func (a Account) watchingQueries() []string {
	var queries []string
	for start := 0; start < len(a.Watching); start += watchingChunkSize {
		end := start + watchingChunkSize
		if end > len(a.Watching) {
			end = len(a.Watching)
		}
		qualifiers := make([]string, 0, end-start)
		for _, repo := range a.Watching[start:end] {
			qualifiers = append(qualifiers, "repo:"+repo)
		}
		queries = append(queries, strings.Join(qualifiers, " "))
	}
	return queries
}

// IssueRef is a parsed "owner/name#number" reference.
type IssueRef struct {
	Repo   string
	Number int
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.Number)
}

// ParseIssueRef parses "owner/name#number".
func ParseIssueRef(s string) (IssueRef, error) {
	repo, num, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok {
		return IssueRef{}, fmt.Errorf("issue reference %q: missing '#'", s)
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return IssueRef{}, fmt.Errorf("issue reference %q: repository must be owner/name", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return IssueRef{}, fmt.Errorf("issue reference %q: invalid number", s)
	}
	return IssueRef{Repo: repo, Number: n}, nil
}
