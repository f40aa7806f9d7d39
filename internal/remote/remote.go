// Package remote talks to the NTSB avdata server: it reads the published
// directory listing into ordered archive identifiers and downloads named
// archives into a transient local directory.
//
// Both operations are plain blocking HTTP calls on the caller's goroutine.
// Failures are never retried here; the orchestrator treats them as retryable
// only by re-running the whole workflow.
package remote

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// NetFailure reports a failed network operation against the remote server.
type NetFailure struct {
	Op  string // "list" or "download"
	URL string
	Err error
}

func (e *NetFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetFailure) Unwrap() error {
	return e.Err
}

// Client accesses one remote archive server.
type Client struct {
	baseURL string
	dir     string // transient download directory
	http    *http.Client
	logger  *log.Logger
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the directory URL the archives are published under,
	// without a trailing slash.
	BaseURL string

	// Dir is the local directory downloads and extractions land in.
	Dir string

	// Timeout bounds each HTTP request, download body included.
	Timeout time.Duration

	// Logger for listing warnings and download progress.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for the NTSB avdata server.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://data.ntsb.gov/avdata",
		Dir:     "temp",
		Timeout: 5 * time.Minute,
		Logger:  log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// New creates a client from config, filling unset fields with defaults.
func New(config *Config) *Client {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Dir == "" {
		config.Dir = def.Dir
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	return &Client{
		baseURL: config.BaseURL,
		dir:     config.Dir,
		http:    &http.Client{Timeout: config.Timeout},
		logger:  config.Logger,
	}
}

// Cleanup removes the transient download directory and everything in it.
func (c *Client) Cleanup() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to remove download directory: %w", err)
	}
	return nil
}
