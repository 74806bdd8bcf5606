package kb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/kalambet/frontdesk/internal/storage"
)

var ctx = context.Background()

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertEntry(t *testing.T, s *storage.Store, id, question, answer string) {
	t.Helper()
	now := time.Now().UTC()
	e := storage.KnowledgeEntry{ID: id, Question: question, Answer: answer, CreatedAt: now, UpdatedAt: now}
	if err := s.InsertKnowledge(ctx, e); err != nil {
		t.Fatalf("InsertKnowledge: %v", err)
	}
}

type staticLister []storage.KnowledgeEntry

func (l staticLister) ListKnowledge(context.Context) ([]storage.KnowledgeEntry, error) {
	return l, nil
}

func TestRetrieve_AnswerThreshold(t *testing.T) {
	s := openTestStore(t)
	insertEntry(t, s, "kb_hours", "What are your weekend hours?", "We're open 9-5 Saturdays")
	insertEntry(t, s, "kb_parking", "Is there parking nearby?", "Yes, behind the salon")

	m := NewMatcher(s)

	got, err := m.Retrieve(ctx, "What are the weekend hours?", 1, AnswerThreshold)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Entry.ID != "kb_hours" {
		t.Fatalf("Retrieve = %+v, want kb_hours", got)
	}
	if got[0].Score < AnswerThreshold {
		t.Errorf("score %v below threshold", got[0].Score)
	}

	got, err = m.Retrieve(ctx, "Do you sell gift cards?", 1, AnswerThreshold)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unrelated query matched: %+v", got)
	}
}

func TestRetrieve_TiesKeepInsertionOrder(t *testing.T) {
	entries := staticLister{
		{ID: "kb_1", Question: "open sunday"},
		{ID: "kb_2", Question: "open monday"},
		{ID: "kb_3", Question: "open sunday"},
	}
	m := NewMatcher(entries)

	got, err := m.Retrieve(ctx, "open sunday", 3, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.Entry.ID)
	}
	if diff := cmp.Diff([]string{"kb_1", "kb_3", "kb_2"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrieve_NoResultsForEmptyQueryOrK(t *testing.T) {
	m := NewMatcher(staticLister{{ID: "kb_1", Question: "hours"}})

	for _, tc := range []struct {
		query string
		k     int
	}{
		{"", 1},
		{"   ", 1},
		{"hours", 0},
		{"hours", -2},
	} {
		got, err := m.Retrieve(ctx, tc.query, tc.k, 0)
		if err != nil {
			t.Fatalf("Retrieve(%q, %d): %v", tc.query, tc.k, err)
		}
		if len(got) != 0 {
			t.Errorf("Retrieve(%q, %d) = %+v, want none", tc.query, tc.k, got)
		}
	}
}

func TestRetrieve_PropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMatcher(errLister{boom})
	if _, err := m.Retrieve(ctx, "hours", 1, 0); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

type errLister struct{ err error }

func (l errLister) ListKnowledge(context.Context) ([]storage.KnowledgeEntry, error) {
	return nil, l.err
}

func TestProperty_RetrieveBoundsAndOrder(t *testing.T) {
	vocab := []string{"open", "hours", "weekend", "price", "cut", "color", "parking", "sunday"}
	wordGen := rapid.SampledFrom(vocab)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		entries := make(staticLister, n)
		for i := range entries {
			words := rapid.SliceOfN(wordGen, 0, 4).Draw(rt, fmt.Sprintf("q%d", i))
			entries[i] = storage.KnowledgeEntry{ID: fmt.Sprintf("kb_%02d", i), Question: strings.Join(words, " ")}
		}
		query := strings.Join(rapid.SliceOfN(wordGen, 1, 4).Draw(rt, "query"), " ")
		k := rapid.IntRange(1, 5).Draw(rt, "k")
		minScore := rapid.Float64Range(0, 1).Draw(rt, "minScore")

		got, err := NewMatcher(entries).Retrieve(ctx, query, k, minScore)
		if err != nil {
			rt.Fatalf("Retrieve: %v", err)
		}
		if len(got) > k {
			rt.Fatalf("got %d results, k = %d", len(got), k)
		}
		for i, r := range got {
			if r.Score < minScore {
				rt.Fatalf("result %d score %v below %v", i, r.Score, minScore)
			}
			if i == 0 {
				continue
			}
			prev := got[i-1]
			if r.Score > prev.Score {
				rt.Fatalf("not sorted: %v after %v", r.Score, prev.Score)
			}
			if r.Score == prev.Score && r.Entry.ID < prev.Entry.ID {
				rt.Fatalf("tie broke insertion order: %s after %s", r.Entry.ID, prev.Entry.ID)
			}
		}
	})
}

func TestLearn_InsertsIntoEmptyKB(t *testing.T) {
	s := openTestStore(t)
	l := NewLearner(s, MergeThreshold)

	res, err := l.Learn(ctx, "hr_1", "What are your weekend hours?", "We're open 9-5 Saturdays")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if !res.Created || res.Updated {
		t.Fatalf("result = %+v, want created", res)
	}

	e, err := s.GetKnowledge(ctx, res.EntryID)
	if err != nil {
		t.Fatalf("GetKnowledge: %v", err)
	}
	if !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", e.CreatedAt, e.UpdatedAt)
	}
	if e.LastHelpRequestID != "hr_1" {
		t.Errorf("LastHelpRequestID = %q, want hr_1", e.LastHelpRequestID)
	}
	if !strings.HasPrefix(e.ID, "kb_") {
		t.Errorf("ID = %q, want kb_ prefix", e.ID)
	}
}

func TestLearn_IdenticalQuestionUpdates(t *testing.T) {
	s := openTestStore(t)
	l := NewLearner(s, MergeThreshold)

	first, err := l.Learn(ctx, "hr_1", "What are your weekend hours?", "Closed")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	second, err := l.Learn(ctx, "hr_2", "What are your weekend hours?", "9-5 Saturdays")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if !second.Updated || second.EntryID != first.EntryID || second.Score != 1 {
		t.Fatalf("second = %+v, want update of %s with score 1", second, first.EntryID)
	}

	entries, err := s.ListKnowledge(ctx)
	if err != nil {
		t.Fatalf("ListKnowledge: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("kb has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Answer != "9-5 Saturdays" || e.LastHelpRequestID != "hr_2" {
		t.Errorf("entry = %+v", e)
	}
	if e.UpdatedAt.Before(e.CreatedAt) {
		t.Errorf("updated_at %v before created_at %v", e.UpdatedAt, e.CreatedAt)
	}
}

func TestLearn_MergeBoundary(t *testing.T) {
	// 10 tokens stored; 9 of them learned scores exactly 0.9.
	stored10 := "alpha bravo charlie delta echo foxtrot golf hotel india juliet"
	learned9 := "alpha bravo charlie delta echo foxtrot golf hotel india"
	// 9 tokens stored; 8 of them learned scores 0.888...
	stored9 := "one two three four five six seven eight nine"
	learned8 := "one two three four five six seven eight"

	t.Run("exactly 0.90 merges", func(t *testing.T) {
		s := openTestStore(t)
		insertEntry(t, s, "kb_a", stored10, "old")
		res, err := NewLearner(s, MergeThreshold).Learn(ctx, "hr_1", learned9, "new")
		if err != nil {
			t.Fatalf("Learn: %v", err)
		}
		if !res.Updated || res.EntryID != "kb_a" || res.Score != 0.9 {
			t.Errorf("result = %+v, want update of kb_a at 0.9", res)
		}
	})

	t.Run("0.89 inserts", func(t *testing.T) {
		s := openTestStore(t)
		insertEntry(t, s, "kb_a", stored9, "old")
		res, err := NewLearner(s, MergeThreshold).Learn(ctx, "hr_1", learned8, "new")
		if err != nil {
			t.Fatalf("Learn: %v", err)
		}
		if !res.Created || res.Score >= 0.9 || res.Score < 0.88 {
			t.Errorf("result = %+v, want insert at ~0.889", res)
		}
		entries, _ := s.ListKnowledge(ctx)
		if len(entries) != 2 {
			t.Errorf("kb has %d entries, want 2", len(entries))
		}
	})
}

func TestLearn_MidRangeScoreInserts(t *testing.T) {
	s := openTestStore(t)
	insertEntry(t, s, "kb_hours", "What are your weekend hours?", "9-5")
	l := NewLearner(s, MergeThreshold)

	// 4/6 overlap: good enough to answer, not to merge.
	res, err := l.Learn(ctx, "hr_1", "What are the weekend hours?", "10-4")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if !res.Created {
		t.Fatalf("result = %+v, want created", res)
	}
	orig, err := s.GetKnowledge(ctx, "kb_hours")
	if err != nil {
		t.Fatalf("GetKnowledge: %v", err)
	}
	if orig.Answer != "9-5" {
		t.Errorf("original entry modified: %+v", orig)
	}
}

func TestLearn_FirstEntryWinsTie(t *testing.T) {
	s := openTestStore(t)
	insertEntry(t, s, "kb_first", "weekend hours", "a")
	insertEntry(t, s, "kb_second", "weekend hours", "b")

	res, err := NewLearner(s, MergeThreshold).Learn(ctx, "hr_1", "Weekend hours?", "c")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if res.EntryID != "kb_first" {
		t.Errorf("merged into %s, want kb_first", res.EntryID)
	}
}

func TestLearn_RejectsBlankInput(t *testing.T) {
	s := openTestStore(t)
	l := NewLearner(s, MergeThreshold)

	if _, err := l.Learn(ctx, "hr_1", "  ", "answer"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank question err = %v, want ErrInvalidInput", err)
	}
	if _, err := l.Learn(ctx, "hr_1", "question", "\t"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank answer err = %v, want ErrInvalidInput", err)
	}
	entries, _ := s.ListKnowledge(ctx)
	if len(entries) != 0 {
		t.Errorf("kb has %d entries after rejected learns", len(entries))
	}
}

func TestLearn_ConcurrentIdenticalQuestionsMakeOneEntry(t *testing.T) {
	s := openTestStore(t)
	l := NewLearner(s, MergeThreshold)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := l.Learn(ctx, fmt.Sprintf("hr_%d", i), "Do you take walk-ins?", fmt.Sprintf("answer %d", i))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	entries, err := s.ListKnowledge(ctx)
	if err != nil {
		t.Fatalf("ListKnowledge: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("kb has %d entries, want 1", len(entries))
	}
}

func TestNewLearner_InvalidThresholdFallsBack(t *testing.T) {
	for _, th := range []float64{0, -1, 1.5} {
		if l := NewLearner(nil, th); l.mergeThreshold != MergeThreshold {
			t.Errorf("NewLearner(%v).mergeThreshold = %v, want %v", th, l.mergeThreshold, MergeThreshold)
		}
	}
}

func TestParseSeed_ListAndMapping(t *testing.T) {
	want := []SeedItem{
		{Question: "Do you take walk-ins?", Answer: "Yes, until 4pm."},
		{Question: "Where are you?", Answer: "12 Main St."},
	}

	yamlList := `
- question: Do you take walk-ins?
  answer: Yes, until 4pm.
- question: Where are you?
  answer: 12 Main St.
`
	jsonList := `[{"question":"Do you take walk-ins?","answer":"Yes, until 4pm."},{"question":"Where are you?","answer":"12 Main St."}]`
	jsonMapping := `{"items":[{"question":"Do you take walk-ins?","answer":"Yes, until 4pm."},{"question":"Where are you?","answer":"12 Main St."}],"all":false}`

	for name, doc := range map[string]string{"yaml list": yamlList, "json list": jsonList, "json mapping": jsonMapping} {
		got, err := ParseSeed([]byte(doc))
		if err != nil {
			t.Fatalf("%s: ParseSeed: %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestParseSeed_RejectsScalar(t *testing.T) {
	if _, err := ParseSeed([]byte("just a string")); err == nil {
		t.Error("expected error for scalar document")
	}
}

func TestParseSeed_Empty(t *testing.T) {
	got, err := ParseSeed([]byte("  \n"))
	if err != nil || len(got) != 0 {
		t.Errorf("ParseSeed(empty) = %v, %v", got, err)
	}
}

func TestSeedEntries_IDsAndTrimming(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	entries, err := SeedEntries([]SeedItem{
		{Question: "  Hours? ", Answer: " 9-5 "},
		{Question: "Parking?", Answer: "Behind the salon"},
	}, now)
	if err != nil {
		t.Fatalf("SeedEntries: %v", err)
	}
	want := []storage.KnowledgeEntry{
		{ID: "kb_seed_1", Question: "Hours?", Answer: "9-5", CreatedAt: now, UpdatedAt: now},
		{ID: "kb_seed_2", Question: "Parking?", Answer: "Behind the salon", CreatedAt: now, UpdatedAt: now},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedEntries_RejectsBlankItem(t *testing.T) {
	_, err := SeedEntries([]SeedItem{{Question: "q", Answer: "a"}, {Question: " ", Answer: "a"}}, time.Now())
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := t.TempDir() + "/seed.yaml"
	if err := os.WriteFile(path, []byte("- question: Hours?\n  answer: 9-5\n"), 0o644); err != nil {
		t.Fatalf("writing seed: %v", err)
	}
	items, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(items) != 1 || items[0].Question != "Hours?" {
		t.Errorf("items = %+v", items)
	}

	if _, err := LoadSeedFile(path + ".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}
