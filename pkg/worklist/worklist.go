// Package worklist reads the list of sites to capture.
package worklist

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/root4loot/goutils/fileutil"
	"github.com/root4loot/goutils/log"
)

// Item is one site to capture. Fields other than url are kept but unused.
type Item struct {
	URL   string                     `json:"url"`
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps unknown fields in Extra.
func (it *Item) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields["url"]
	if ok {
		if err := json.Unmarshal(raw, &it.URL); err != nil {
			return fmt.Errorf("url: %w", err)
		}
		delete(fields, "url")
	}
	if len(fields) > 0 {
		it.Extra = fields
	}
	return nil
}

// Load reads items from path. Files ending in .txt are read as one URL per
// line; anything else is decoded as a JSON array of objects.
func Load(path string) ([]Item, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return readList(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	items, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// ReadJSON decodes a JSON array of items. Entries without a url are dropped.
func ReadJSON(r io.Reader) ([]Item, error) {
	var raw []Item
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding work list: %w", err)
	}
	return compact(raw), nil
}

func readList(path string) ([]Item, error) {
	lines, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, Item{URL: line})
	}
	return compact(items), nil
}

func compact(items []Item) []Item {
	kept := items[:0]
	for i, it := range items {
		it.URL = strings.TrimSpace(it.URL)
		if it.URL == "" {
			log.Warnf("Skipping entry %d: no url", i)
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

// URLs returns the url of every item.
func URLs(items []Item) []string {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	return urls
}
