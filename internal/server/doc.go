// Package server provides the HTTP control API for the stream poller.
//
// It handles all HTTP concerns:
//
//   - Stream management: create, edit, enable, disable and delete stream
//     definitions; edits are applied to the schedule immediately
//   - Schedule control: inspect the queue, refresh a stream, and send
//     stop/restart signals to the poller
//   - Server-Sent Events: bus events relayed at "/api/sse"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
