// Package cli implements the pb command-line interface.
//
// # Command Structure
//
// The root command is "pb". Given hosts and no subcommand it behaves like
// "pb run":
//
//	pb [run] HOST...   - Stage the benchmark on every host, run it, collect results
//	pb tidy FILE...    - Merge raw bench-<host>.csv files into one tidy CSV
//	pb show [DIR]      - Print the run.yaml an earlier run left in DIR
//	pb unlock HOST...  - Remove a stuck benchmark lock
//	pb version         - Print build information
//	pb completion SH   - Generate a shell completion script
//
// The bench2tidy binary is the tidy command as its own root.
//
// # Configuration
//
// Each command loads .pb.yaml (see config.Find) and binds its flags over
// it with viper, so an explicitly set flag always wins. Logging is set up
// from the merged config before the command runs.
//
// # Exit Codes
//
// 0 when every host succeeded, 1 for configuration, transport setup and
// local I/O failures, 2 when at least one host failed. Execute maps errors
// to these codes.
package cli
