// Package operations runs background jobs such as processing an uploaded
// file.
//
// A JobQueue owns a bounded pool of workers fed by a buffered channel.
// Handlers are registered per job kind and report progress through a
// ProgressFunc. Every state change is written to the JobStore and handed to
// a Notifier; StatusBroadcaster is the Notifier that pushes job snapshots to
// websocket clients in the order they happened.
//
// Jobs can be cancelled while pending or running. A running job sees the
// cancellation through its context.
package operations
