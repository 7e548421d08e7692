// Package session is the seam between the facade and net/http. It starts
// data, upload and download tasks, hands out [Task] handles, and routes
// handshake challenges and byte counts to a [Delegate].
//
// Tasks are hot: each operation begins network activity before it returns.
// Completion is reported once per task through a [CompletionFunc].
package session
