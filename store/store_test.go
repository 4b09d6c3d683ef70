package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/anim8or/GameGleaner/models"
)

func row(url string, listing models.ListingType, price float64) models.EnrichedRecord {
	r := models.EnrichedRecord{
		StubRecord: models.StubRecord{
			Title:      "Game at " + url,
			DetailURL:  url,
			Listing:    listing,
			SourcePage: "popular_page_1",
			ScrapeDate: "2026-08-31",
		},
		Author: "Dev",
		Genres: []string{"Action", "Puzzle"},
	}
	if price > 0 {
		r.Price = &price
		r.Currency = "$"
	} else {
		r.IsFree = true
	}
	return r
}

func keys(rows []models.EnrichedRecord) []string {
	out := make([]string, len(rows))
	for i := range rows {
		out[i] = rows[i].Key()
	}
	return out
}

func TestMergeNewObservationWins(t *testing.T) {
	existing := []models.EnrichedRecord{row("http://m.test/g1", models.ListingPopular, 5)}
	fresh := []models.EnrichedRecord{row("http://m.test/g1", models.ListingPopular, 3)}

	merged := Merge(existing, fresh)
	if len(merged) != 1 {
		t.Fatalf("rows = %d, want 1", len(merged))
	}
	if merged[0].Price == nil || *merged[0].Price != 3 {
		t.Fatalf("price = %v, want 3 (new observation wins)", merged[0].Price)
	}
}

func TestMergeKeyIncludesListing(t *testing.T) {
	existing := []models.EnrichedRecord{row("http://m.test/g1", models.ListingPopular, 5)}
	fresh := []models.EnrichedRecord{row("http://m.test/g1", models.ListingTopSellers, 5)}

	merged := Merge(existing, fresh)
	if len(merged) != 2 {
		t.Fatalf("rows = %d, want 2 (same URL in two listings is two keys)", len(merged))
	}
}

func TestMergeOrderPreserved(t *testing.T) {
	existing := []models.EnrichedRecord{
		row("http://m.test/a", models.ListingPopular, 1),
		row("http://m.test/b", models.ListingPopular, 2),
	}
	fresh := []models.EnrichedRecord{
		row("http://m.test/b", models.ListingPopular, 9),
		row("http://m.test/c", models.ListingPopular, 3),
		row("http://m.test/d", models.ListingPopular, 4),
	}

	merged := Merge(existing, fresh)
	got := keys(merged)
	want := keys([]models.EnrichedRecord{
		row("http://m.test/a", models.ListingPopular, 1),
		row("http://m.test/b", models.ListingPopular, 9),
		row("http://m.test/c", models.ListingPopular, 3),
		row("http://m.test/d", models.ListingPopular, 4),
	})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("key order = %v, want %v", got, want)
	}
	if *merged[1].Price != 9 {
		t.Fatalf("updated row should keep its original position with the new value")
	}
}

func TestMergeIdempotent(t *testing.T) {
	existing := []models.EnrichedRecord{
		row("http://m.test/a", models.ListingPopular, 1),
		row("http://m.test/b", models.ListingTopSellers, 2),
	}
	fresh := []models.EnrichedRecord{
		row("http://m.test/b", models.ListingTopSellers, 7),
		row("http://m.test/c", models.ListingPopular, 0),
	}

	once := Merge(existing, fresh)
	twice := Merge(once, fresh)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestMergeKeyUniqueness(t *testing.T) {
	existing := []models.EnrichedRecord{
		row("http://m.test/a", models.ListingPopular, 1),
		row("http://m.test/a", models.ListingPopular, 2),
	}
	fresh := []models.EnrichedRecord{
		row("http://m.test/a", models.ListingPopular, 3),
		row("http://m.test/b", models.ListingPopular, 1),
		row("http://m.test/b", models.ListingPopular, 4),
	}

	merged := Merge(existing, fresh)
	seen := make(map[string]bool)
	for _, r := range merged {
		if seen[r.Key()] {
			t.Fatalf("duplicate key %q after merge", r.Key())
		}
		seen[r.Key()] = true
	}
	if len(merged) != 2 {
		t.Fatalf("rows = %d, want 2", len(merged))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	st := NewStore(path)

	free := row("http://m.test/free", models.ListingPopular, 0)
	paid := row("http://m.test/paid", models.ListingTopSellers, 9.99)
	paid.ThumbnailURL = "http://img.test/p.png"
	paid.ThumbnailPath = "data/thumbnails/p.png"

	if err := st.Save([]models.EnrichedRecord{free, paid}); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("rows = %d, want 2", len(loaded))
	}
	if !reflect.DeepEqual(loaded[0], free) {
		t.Fatalf("free row mismatch:\ngot  %+v\nwant %+v", loaded[0], free)
	}
	if !reflect.DeepEqual(loaded[1], paid) {
		t.Fatalf("paid row mismatch:\ngot  %+v\nwant %+v", loaded[1], paid)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "absent.csv"))
	rows, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestLoadIncompatibleSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	if err := os.WriteFile(path, []byte("title,price\nGame,9.99\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := NewStore(path).Load()
	var corrupt CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("error = %v, want CorruptError", err)
	}
}

func TestLoadMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	st := NewStore(path)
	if err := st.Save([]models.EnrichedRecord{row("http://m.test/a", models.ListingPopular, 1)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("Game,http://m.test/b,Popular,p_1,2026-08-31,Dev,not-a-price,$,false,,,\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	_, err = st.Load()
	var corrupt CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("error = %v, want CorruptError", err)
	}
}

func TestSaveDoesNotTouchDatasetOnExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	st := NewStore(path)

	if err := st.Save([]models.EnrichedRecord{row("http://m.test/a", models.ListingPopular, 1)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Saving again with more rows replaces the file atomically.
	if err := st.Save(Merge(before, []models.EnrichedRecord{row("http://m.test/b", models.ListingPopular, 2)})); err != nil {
		t.Fatalf("save: %v", err)
	}
	after, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("rows = %d, want 2 (history preserved)", len(after))
	}
}
