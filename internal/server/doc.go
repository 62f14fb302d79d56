// Package server implements the session and room lifecycle engine for DeskChat.
//
// Anonymous visitors are paired one-to-one with a privileged admin operator
// over WebSockets. All state is in-memory and owned by a single hub event
// loop; the implementation is organized into specialized files for
// configuration, the room store, reconnection timers, clients, and HTTP
// handlers to keep the codebase maintainable and testable as the project grows.
package server
