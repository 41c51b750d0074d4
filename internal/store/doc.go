// Package store provides persistence for stream definitions, user
// preferences and the issues found by polling.
//
// This package is internal to streampoll. The main components are:
//
//   - [StreamRepository], [StreamWriter], [Preferences], [IssueSink] and
//     [IssueReader]: the narrow interfaces each consumer depends on
//   - [Store]: all of the above, implemented by [MemoryStore] and
//     [SQLiteStore]
//   - [Stream] and [Issue]: storage representations
//
// Both implementations are safe for concurrent access. A fresh store always
// contains the three built-in system streams (Team, Watching, Subscription)
// with fixed negative ids.
package store
