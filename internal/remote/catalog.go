package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/ntsbtools/avdata/internal/archive"
)

// ListDeltas fetches the remote index page and returns every update archive
// it links to, ascending by version key.
//
// The listing contains plenty of files that are not update archives (the
// snapshot itself, readme files, pre-1982 data); those are ignored. Names
// that look like an update archive but carry an invalid version key are
// logged and skipped, never fatal to the listing.
func (c *Client) ListDeltas(ctx context.Context) ([]archive.ID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build listing request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetFailure{Op: "list", URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetFailure{Op: "list", URL: c.baseURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var ids []archive.ID
	for _, name := range anchorFilenames(resp.Body) {
		id, err := archive.Parse(name)
		switch {
		case err == nil:
			if !id.IsSnapshot() {
				ids = append(ids, id)
			}
		case errors.Is(err, archive.ErrNotArchive):
			// Unrelated file; skip silently.
		default:
			c.logger.Printf("skipping listing entry: %v", err)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}

// anchorFilenames extracts the filename component of every <a href> in an
// HTML document. Query strings are stripped before taking the base name.
func anchorFilenames(r io.Reader) []string {
	var names []string
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a parse error; either way the listing is done.
			return names
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tag, hasAttr := z.TagName()
		if string(tag) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := z.TagAttr()
			if string(key) == "href" {
				href, _, _ := strings.Cut(string(val), "?")
				if name := path.Base(href); name != "." && name != "/" {
					names = append(names, name)
				}
			}
			if !more {
				break
			}
		}
	}
}
