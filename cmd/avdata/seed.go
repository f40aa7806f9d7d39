package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	seedForce    bool
	seedKeepTemp bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Build the local store from the full avall.zip snapshot",
	Long: `Perform the initial full load from the avall.zip snapshot.

Downloads the snapshot, converts every defined table, and loads them into a
fresh SQLite store. The store is built in a staging file and only moved into
place once complete, so a failed seed never leaves a half-built database
masquerading as a finished one.

Refuses to overwrite an existing store unless --force is given, because
overwriting destroys user tags and labels.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		runner, client := newRunner(cfg)

		report, err := runner.Seed(cmd.Context(), seedForce)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cleanupTemp(client, seedKeepTemp)

		fmt.Printf("Seed complete: %d rows loaded from %s\n", report.Counts.Total(), report.Archive)
		fmt.Printf("Store: %s\n", cfg.DBPath)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "overwrite an existing store (destroys annotations)")
	seedCmd.Flags().BoolVar(&seedKeepTemp, "keep-temp", false, "keep downloaded archives in the temp directory")
}
