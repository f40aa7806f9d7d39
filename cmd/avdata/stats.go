package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ntsbtools/avdata/internal/schema"
	"github.com/ntsbtools/avdata/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts for every mirrored table",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireStore(cfg.DBPath)

		s, err := schema.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading table definitions: %v\n", err)
			os.Exit(1)
		}

		db, err := store.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		counts, err := db.Stats(cmd.Context(), s.All())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error gathering stats: %v\n", err)
			os.Exit(1)
		}

		var total int64
		fmt.Printf("%-20s %12s\n", "TABLE", "ROWS")
		for _, tc := range counts {
			fmt.Printf("%-20s %12d\n", tc.Table, tc.Rows)
			total += tc.Rows
		}
		fmt.Printf("%-20s %12d\n", "total", total)

		records, err := db.History(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sync ledger: %v\n", err)
			os.Exit(1)
		}
		if len(records) > 0 {
			fmt.Printf("\n%d archive(s) applied, latest %s at %s\n",
				len(records), records[0].Archive,
				records[0].AppliedAt.Format("2006-01-02 15:04:05"))
		}
	},
}
