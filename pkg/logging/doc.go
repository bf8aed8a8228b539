// Package logging provides the subsystem logger used throughout rigor.
//
// It is a thin layer over log/slog: every entry carries a "subsystem" attribute
// naming the component that produced it (Planner, Scheduler, Runner, Ports, ...),
// and an optional "error" attribute.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelFromEnv(logging.LevelInfo), os.Stderr)
//
//	logging.Info("Planner", "Selected %d instances", len(plan.Instances))
//	logging.Debug("Scheduler", "Worker %d picked %s", id, inst.DisplayID())
//	logging.Error("Runner", err, "Cleanup failed for %s", inst.DisplayID())
//
// The level can be overridden with the RIGOR_LOG environment variable
// (debug, info, warn, error). InitSilent discards everything, which the
// CLI uses when stdout carries machine-readable output.
//
// Logging is safe for concurrent use from any number of workers.
package logging
