package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ntsbtools/avdata/internal/config"
	"github.com/ntsbtools/avdata/internal/etl"
	"github.com/ntsbtools/avdata/internal/mdb"
	"github.com/ntsbtools/avdata/internal/remote"
	"github.com/ntsbtools/avdata/internal/schema"
)

var rootCmd = &cobra.Command{
	Use:   "avdata",
	Short: "Local mirror of the NTSB aviation accident database",
	Long: `avdata maintains a local SQLite mirror of the NTSB aviation accident
database (https://data.ntsb.gov/avdata).

The store is seeded once from the full avall.zip snapshot and kept current
by applying incremental upYYNNN.zip archives in version order. Application
is idempotent: every applied archive is recorded in a sync ledger, so a
re-run never duplicates or loses data.`,
}

var flagDB string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to the SQLite store (overrides config)")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

// logSink is where component loggers write: stderr by default, a rotating
// file when log_file is configured.
var logSink io.Writer = os.Stderr

func newLogger(prefix string) *log.Logger {
	return log.New(logSink, prefix, log.LstdFlags)
}

// loadConfig reads configuration and applies flag overrides, exiting on
// failure. Every subcommand calls this first.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if cfg.LogFile != "" {
		logSink = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     60, // days
		}
	}
	return cfg
}

// mdbOpener extracts the MDB from a downloaded archive and opens it as a
// row source.
type mdbOpener struct {
	client *remote.Client
}

func (o mdbOpener) Open(ctx context.Context, zipPath string) (mdb.Source, error) {
	mdbPath, err := o.client.ExtractMDB(zipPath)
	if err != nil {
		return nil, err
	}
	return mdb.Open(mdbPath)
}

// newRunner wires the production collaborators into an orchestrator.
func newRunner(cfg *config.Config) (*etl.Runner, *remote.Client) {
	s, err := schema.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading table definitions: %v\n", err)
		os.Exit(1)
	}

	client := remote.New(&remote.Config{
		BaseURL: cfg.BaseURL,
		Dir:     cfg.TempDir,
		Timeout: cfg.HTTPTimeout,
		Logger:  newLogger("[remote] "),
	})
	runner := etl.New(cfg.DBPath, s, client, client, mdbOpener{client: client}, newLogger("[etl] "))
	return runner, client
}

// requireStore exits with a hint when no store exists at path. Opening the
// store would otherwise create an empty database file.
func requireStore(path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: no store at %s (run 'avdata seed' first)\n", path)
		os.Exit(1)
	}
}

// cleanupTemp removes downloaded archives unless the user asked to keep them.
func cleanupTemp(client *remote.Client, keep bool) {
	if keep {
		return
	}
	if err := client.Cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to clean temp directory: %v\n", err)
	}
}
