// Package process starts and supervises the child processes a test owns.
//
// Every process is started in its own process group so that killing it also
// takes down anything it spawned. Output is captured to <name>.out and
// <name>.err in the instance's output directory and kept in memory for
// assertions. A Group tracks everything one instance started and kills
// whatever is still running at cleanup, timeout or interrupt.
package process
