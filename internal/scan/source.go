package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

const walkBatchSize = 256

// FilesystemSource walks a directory tree. Reserved directories (Trove's
// own download, part and thumbnail directories) are never descended in
// to, and files whose name matches a blacklist expression are ignored.
type FilesystemSource struct {
	root      string
	reserved  []string
	blacklist []*regexp.Regexp
}

func NewFilesystemSource(root string, reserved []string, blacklist []*regexp.Regexp) *FilesystemSource {
	cleaned := make([]string, 0, len(reserved))
	for _, r := range reserved {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			cleaned = append(cleaned, abs)
		}
	}

	return &FilesystemSource{root: root, reserved: cleaned, blacklist: blacklist}
}

func (source *FilesystemSource) Enumerate(ctx context.Context, visit func([]Item) error) error {
	root, err := filepath.Abs(source.root)
	if err != nil {
		return err
	}

	batch := make([]Item, 0, walkBatchSize)
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if entry.IsDir() {
			if source.isReserved(path) {
				log.Debugf("Skipping reserved directory %s\n", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || source.isBlacklisted(entry.Name()) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		batch = append(batch, Item{Path: path, Name: entry.Name(), ModTime: info.ModTime()})
		if len(batch) == walkBatchSize {
			if err := visit(batch); err != nil {
				return err
			}
			batch = make([]Item, 0, walkBatchSize)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk file system: %w", err)
	}

	if len(batch) > 0 {
		return visit(batch)
	}
	return nil
}

func (source *FilesystemSource) isReserved(path string) bool {
	for _, reserved := range source.reserved {
		if path == reserved || strings.HasPrefix(path, reserved+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

func (source *FilesystemSource) isBlacklisted(name string) bool {
	for _, expr := range source.blacklist {
		if expr.MatchString(name) {
			return true
		}
	}

	return false
}

type (
	// Page is a single page of a paginated listing. An empty NextPageToken
	// marks the last page.
	Page struct {
		Items         []Item
		NextPageToken string
	}

	// Lister fetches pages of remote items from some source-specific API.
	Lister interface {
		List(ctx context.Context, pageToken string) (Page, error)
	}

	// ListingSource enumerates every page of a Lister, one batch per page.
	ListingSource struct {
		lister Lister
	}
)

func NewListingSource(lister Lister) *ListingSource {
	return &ListingSource{lister: lister}
}

func (source *ListingSource) Enumerate(ctx context.Context, visit func([]Item) error) error {
	token := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := source.lister.List(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to list page %d: %w", page, err)
		}

		if len(result.Items) > 0 {
			if err := visit(result.Items); err != nil {
				return err
			}
		}

		if result.NextPageToken == "" || result.NextPageToken == token {
			return nil
		}
		token = result.NextPageToken
	}
}

// HTTPLister reads a JSON listing of the form
// {"items": [{"url": "...", "name": "..."}], "nextPageToken": "..."},
// passing the page token back as the pageToken query parameter.
type HTTPLister struct {
	client   *http.Client
	endpoint string
}

type httpListing struct {
	Items []struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

func NewHTTPLister(client *http.Client, endpoint string) *HTTPLister {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPLister{client: client, endpoint: endpoint}
}

func (lister *HTTPLister) List(ctx context.Context, pageToken string) (Page, error) {
	target, err := url.Parse(lister.endpoint)
	if err != nil {
		return Page{}, err
	}
	if pageToken != "" {
		query := target.Query()
		query.Set("pageToken", pageToken)
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := lister.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("listing %s returned status %d", target.Redacted(), resp.StatusCode)
	}

	var listing httpListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return Page{}, fmt.Errorf("failed to decode listing: %w", err)
	}

	page := Page{Items: make([]Item, 0, len(listing.Items)), NextPageToken: listing.NextPageToken}
	for _, item := range listing.Items {
		if item.URL == "" {
			continue
		}
		page.Items = append(page.Items, Item{URL: item.URL, Name: item.Name})
	}

	return page, nil
}
