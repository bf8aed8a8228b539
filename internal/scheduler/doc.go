// Package scheduler runs a RunPlan across a bounded pool of workers.
//
// Instances are dispatched strictly in plan order; a worker slot frees up as
// soon as its instance finishes and the next undispatched instance takes it.
// Different cycles of one test may therefore overlap. Results are delivered
// on a channel in plan order regardless of completion order.
//
// Each instance gets an isolated ProcessContext: its own purged output
// directory, its own copy of the environment and its own process group. The
// process-wide working directory and environment are snapshotted around
// every instance; a test that changes them is marked BLOCKED.
//
// Timeouts record TIMEDOUT and kill the instance's processes. Cancelling the
// run context stops dispatch; in-flight instances are marked BLOCKED and only
// completed instances are delivered.
package scheduler
