package kb

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/frontdesk/internal/storage"
)

// SeedItem is one question/answer pair in a seed file or seed request.
type SeedItem struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// LoadSeedFile reads seed items from a YAML or JSON file.
func LoadSeedFile(path string) ([]SeedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	items, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return items, nil
}

// ParseSeed decodes seed items. The document is either a list of items or a
// mapping with an "items" list. JSON input is accepted as YAML.
func ParseSeed(data []byte) ([]SeedItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]

	var items []SeedItem
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&items); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var doc struct {
			Items []SeedItem `yaml:"items"`
		}
		if err := root.Decode(&doc); err != nil {
			return nil, err
		}
		items = doc.Items
	default:
		return nil, fmt.Errorf("seed document must be a list or a mapping with items")
	}
	return items, nil
}

// SeedEntries converts items into KB entries with ids kb_seed_1..n and
// trimmed text. Items with a blank question or answer are rejected.
func SeedEntries(items []SeedItem, now time.Time) ([]storage.KnowledgeEntry, error) {
	entries := make([]storage.KnowledgeEntry, 0, len(items))
	for i, it := range items {
		q := strings.TrimSpace(it.Question)
		a := strings.TrimSpace(it.Answer)
		if q == "" || a == "" {
			return nil, fmt.Errorf("%w: seed item %d needs a question and an answer", ErrInvalidInput, i+1)
		}
		entries = append(entries, storage.KnowledgeEntry{
			ID:        fmt.Sprintf("kb_seed_%d", i+1),
			Question:  q,
			Answer:    a,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return entries, nil
}
