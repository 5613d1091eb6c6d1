// Package lifecycle provides server startup and shutdown orchestration.
//
// The Coordinator binds a Listener, then turns SIGTERM and SIGINT into a
// resolution of its Running handle. Callers block in AwaitCompletion and
// then call Shutdown, which stops the listener within the shutdown timeout
// and cancels the signal subscriptions. Shutdown is safe to call from any
// goroutine, any number of times, and after a failed Start.
//
// A started coordinator must be shut down before it is released; Release
// reports a misuse otherwise, and a leaked coordinator is reported when it
// is garbage collected.
package lifecycle
