// Package descriptor discovers and parses rigor test descriptors.
//
// Every directory under the test root that holds a rigortest.yaml is one test.
// Directories may also hold a rigordir.yaml whose settings apply to every test
// beneath them:
//
//	# rigordir.yaml
//	idPrefix: "Storage."
//	groups: [storage]
//	executionOrderHint: 10
//	modes: [Mysql, Postgres]
//
//	# rigortest.yaml
//	title: Survives a primary failover
//	groups: [failover]
//	type: auto
//	timeout: 5m
//	modes:
//	  list: [{mode: Sqlite, primary: true}]
//	command:
//	  setup: ./seed.sh {{ .Mode.Name }}
//	  execute: ./failover --port {{ port "db" }}
//	expect:
//	  exitCode: 0
//	  stdoutContains: [recovered]
//
// Id prefixes are concatenated from the root down, groups accumulate, the
// nearest execution order hint wins, and modes are inherited in the manner
// described by package modes.
//
// Files are validated against a JSON schema before decoding.
package descriptor
