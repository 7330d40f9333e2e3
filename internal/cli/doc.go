// Package cli provides the interactive filevault shell.
//
// A Session reads commands from an input stream, drives the folder manager
// and the encrypted file store, and remembers the selected folder between
// runs. Changes made through the control API arrive as change events; the
// session marks itself stale and resyncs the folder tree before the next
// command, on its own goroutine.
//
// The loop is started with Session.Run, which blocks until the user types
// exit, the input ends or the context is cancelled.
package cli
