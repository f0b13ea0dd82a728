// Package cmd implements the command-line interface of voltc. It provides a
// hierarchical command structure for invoking procedures as a client and for
// running a procedure server.
//
// The package is organized into several subpackages:
//
//   - invoke: Invoke a single procedure with typed parameters
//   - kv: Commands for the key-value procedures of the procedure server (set, get, del)
//   - perf: Load testing with throughput and latency reporting
//   - serve: Commands for starting and configuring the procedure server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See voltc -help for a list of all commands.
package cmd
