package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ntsbtools/avdata/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every archive applied to the local store",
	Long: `Display the sync ledger: one row per archive ever applied, most
recent first, with the content fingerprint and row counts recorded at
apply time.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireStore(cfg.DBPath)

		db, err := store.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		records, err := db.History(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sync ledger: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No archives applied yet. Run 'avdata seed' first.")
			return
		}

		fmt.Printf("%-14s %-20s %12s %10s %12s\n",
			"ARCHIVE", "APPLIED", "SIZE", "INSERTED", "OVERWRITTEN")
		for _, rec := range records {
			fmt.Printf("%-14s %-20s %12d %10d %12d\n",
				rec.Archive, rec.AppliedAt.Format("2006-01-02 15:04:05"),
				rec.Size, rec.RowsInserted, rec.RowsOverwritten)
		}
	},
}
