// Package runner drives a run plan to completion.
//
// The Coordinator hands every instance of a plan to the scheduler, walks it
// through the setup, execute, validate and cleanup phases of a Test built by
// the configured TestFactory, and publishes each finalized result to the
// reporters in plan order. Cleanup always runs, even after a fault in an
// earlier phase.
//
// Extensions hook in as plugins: a RunnerPlugin is set up once per run, a
// TestPlugin once per instance before the test's own setup.
//
// CommandTestFactory is the built-in factory. It runs the shell commands of
// a descriptor's "command" section and checks its "expect" section.
package runner
