// Command avdata maintains a local SQLite mirror of the NTSB aviation
// accident database, seeded from the full avall.zip snapshot and kept
// current by idempotently applying incremental upYYNNN.zip archives.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
