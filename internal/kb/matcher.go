package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/frontdesk/internal/similarity"
	"github.com/kalambet/frontdesk/internal/storage"
)

// Default thresholds used by callers of Retrieve and Learn.
const (
	AnswerThreshold  = 0.60
	ListingThreshold = 0.50
	MergeThreshold   = 0.90
)

// EntryLister is the read side of the knowledge base.
type EntryLister interface {
	ListKnowledge(ctx context.Context) ([]storage.KnowledgeEntry, error)
}

// Match is a KB entry with its similarity score against a query.
type Match struct {
	Entry storage.KnowledgeEntry `json:"entry"`
	Score float64                `json:"score"`
}

// Matcher ranks KB entries by how closely their question matches a query.
type Matcher struct {
	store EntryLister
}

// NewMatcher creates a Matcher reading entries from store.
func NewMatcher(store EntryLister) *Matcher {
	return &Matcher{store: store}
}

// Retrieve returns up to k entries scoring at least minScore against query,
// best first. Entries with equal scores keep their insertion order.
func (m *Matcher) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]Match, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	entries, err := m.store.ListKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing kb entries: %w", err)
	}
	return rank(similarity.Tokenize(query), entries, k, minScore), nil
}

func rank(query []string, entries []storage.KnowledgeEntry, k int, minScore float64) []Match {
	var matches []Match
	for _, e := range entries {
		score := similarity.Jaccard(query, similarity.Tokenize(e.Question))
		if score >= minScore {
			matches = append(matches, Match{Entry: e, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
