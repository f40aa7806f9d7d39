package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ntsbtools/avdata/internal/etl"
)

var updateKeepTemp bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply new incremental archives to the local store",
	Long: `Apply every upYYNNN.zip archive the local store has not absorbed yet,
in ascending version order.

Archives already recorded in the sync ledger are skipped without a download.
Each archive is applied as a single transaction; if one fails, its changes
are rolled back, earlier archives stay applied, and the run stops so the
failing archive can be investigated. Nothing new on the server is a normal,
successful no-op.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		runner, client := newRunner(cfg)

		report, err := runner.Update(cmd.Context())
		if err != nil {
			var stopped *etl.StoppedAtError
			if errors.As(err, &stopped) && report != nil {
				fmt.Fprintf(os.Stderr, "Applied %d archive(s) before failing.\n", len(report.Applied))
				fmt.Fprintf(os.Stderr, "Investigate %s; the store reflects every archive before it.\n", stopped.Archive)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cleanupTemp(client, updateKeepTemp)

		if len(report.Applied) == 0 {
			fmt.Println("Store is up to date. Nothing to apply.")
			return
		}
		for _, applied := range report.Applied {
			fmt.Printf("  %s: %d inserted, %d overwritten\n",
				applied.Archive, applied.Counts.Inserted, applied.Counts.Overwritten)
		}
		fmt.Printf("Update complete: %d archive(s) applied, %d skipped.\n",
			len(report.Applied), len(report.Skipped))
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateKeepTemp, "keep-temp", false, "keep downloaded archives in the temp directory")
}
