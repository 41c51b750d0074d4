// Package poller drives the stream schedule.
//
// The main components are:
//
//   - [Loop]: executes queued units one at a time, separated by the polling
//     interval, and stops at well-defined points when its generation is
//     superseded
//   - [Controller]: loads streams into the schedule, applies refresh and
//     delete requests, and handles stop/restart control signals
//
// One Controller is created per application and shared by the HTTP control
// API and the signal listener.
package poller
