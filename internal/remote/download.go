package remote

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Download fetches the named archive into the client's download directory
// and returns the local path. The body is streamed straight to disk.
func (c *Client) Download(ctx context.Context, name string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	url := c.baseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetFailure{Op: "download", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetFailure{Op: "download", URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	dest := filepath.Join(c.dir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", &NetFailure{Op: "download", URL: url, Err: err}
	}

	c.logger.Printf("downloaded %s (%.1f MB)", name, float64(n)/(1<<20))
	return dest, nil
}

// ExtractMDB extracts the first .mdb or .accdb entry from the zip archive at
// zipPath into the download directory and returns its local path.
func (c *Client) ExtractMDB(zipPath string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", zipPath, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		lower := strings.ToLower(entry.Name)
		if !strings.HasSuffix(lower, ".mdb") && !strings.HasSuffix(lower, ".accdb") {
			continue
		}

		dest := filepath.Join(c.dir, filepath.Base(entry.Name))
		if err := extractEntry(entry, dest); err != nil {
			return "", fmt.Errorf("failed to extract %s from %s: %w", entry.Name, zipPath, err)
		}
		c.logger.Printf("extracted %s", filepath.Base(dest))
		return dest, nil
	}

	return "", fmt.Errorf("no .mdb or .accdb entry inside %s", zipPath)
}

func extractEntry(entry *zip.File, dest string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
