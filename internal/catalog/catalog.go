// Package catalog loads the static item catalog from per-collection JSON
// files. The catalog is built once at startup and never mutated afterwards,
// so request handlers share it without locking.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrUnknownItem = errors.New("unknown item")

type Item struct {
	UUID         string `json:"uuid"`
	CollectionID string `json:"collectionId"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	ImageLink    string `json:"imageLink,omitempty"`
}

type Catalog struct {
	items       map[string]Item
	ordered     []Item
	collections []string
}

// Load reads every *.json file under dir (one file per collection, each
// holding an array of items) and flattens them into a single lookup. A uuid
// appearing in more than one file is a load error.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	c := &Catalog{items: make(map[string]Item)}
	for _, file := range files {
		contents, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read collection %s: %w", filepath.Base(file), err)
		}
		var items []Item
		if err := json.Unmarshal(contents, &items); err != nil {
			return nil, fmt.Errorf("parse collection %s: %w", filepath.Base(file), err)
		}
		collection := strings.TrimSuffix(filepath.Base(file), ".json")
		for _, item := range items {
			if item.UUID == "" {
				return nil, fmt.Errorf("collection %s: item without uuid", collection)
			}
			if _, exists := c.items[item.UUID]; exists {
				return nil, fmt.Errorf("duplicate item uuid %s in collection %s", item.UUID, collection)
			}
			if item.CollectionID == "" {
				item.CollectionID = collection
			}
			c.items[item.UUID] = item
			c.ordered = append(c.ordered, item)
		}
		c.collections = append(c.collections, collection)
	}
	return c, nil
}

func (c *Catalog) Get(uuid string) (Item, error) {
	item, ok := c.items[uuid]
	if !ok {
		return Item{}, ErrUnknownItem
	}
	return item, nil
}

// All returns the items in load order.
func (c *Catalog) All() []Item {
	out := make([]Item, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func (c *Catalog) Random() (Item, error) {
	if len(c.ordered) == 0 {
		return Item{}, ErrUnknownItem
	}
	return c.ordered[rand.Intn(len(c.ordered))], nil
}

func (c *Catalog) Collections() []string {
	out := make([]string, len(c.collections))
	copy(out, c.collections)
	return out
}

func (c *Catalog) Len() int {
	return len(c.ordered)
}
