// Package store persists the merged dataset as a CSV table with a fixed
// column schema. The file is logically a mapping from dedup key to the
// most recently observed record; Merge implements the reconciliation
// rule, Load and Save handle the on-disk mechanics.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/anim8or/GameGleaner/models"
)

// columns is the persisted schema, in order. Changing this breaks
// compatibility with previously written datasets.
var columns = []string{
	"title", "url", "listing_type", "source_page", "scrape_date",
	"author", "price", "currency", "is_free", "genres",
	"thumbnail_url", "thumbnail_path",
}

// genreDelimiter joins the genre set in one CSV field. Not expected to
// occur inside genre names.
const genreDelimiter = "|"

// CorruptError indicates the persisted dataset is unreadable or has an
// incompatible schema. It is fatal: the run aborts rather than silently
// discarding history.
type CorruptError struct {
	Path string
	Err  error
}

func (e CorruptError) Error() string {
	return fmt.Sprintf("corrupt dataset %s: %v", e.Path, e.Err)
}

func (e CorruptError) Unwrap() error {
	return e.Err
}

// Store reads and writes the persisted dataset file.
type Store struct {
	path string
}

// NewStore builds a Store for the dataset at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the dataset file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the existing dataset. A missing file is an empty dataset;
// anything unreadable or schema-incompatible is a CorruptError.
func (s *Store) Load() ([]models.EnrichedRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, CorruptError{Path: s.path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, CorruptError{Path: s.path, Err: err}
	}
	if !slices.Equal(header, columns) {
		return nil, CorruptError{Path: s.path, Err: fmt.Errorf("incompatible schema %v", header)}
	}

	var rows []models.EnrichedRecord
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, CorruptError{Path: s.path, Err: err}
		}
		row, err := parseRow(fields)
		if err != nil {
			return nil, CorruptError{Path: s.path, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Save writes the merged dataset atomically: a temp file in the target
// directory is renamed into place, so a crash mid-write never truncates
// prior data.
func (s *Store) Save(rows []models.EnrichedRecord) error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dataset directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	tmpName := tmp.Name()

	writer := csv.NewWriter(tmp)
	writeErr := writer.Write(columns)
	for _, row := range rows {
		if writeErr != nil {
			break
		}
		writeErr = writer.Write(formatRow(&row))
	}
	if writeErr == nil {
		writer.Flush()
		writeErr = writer.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write dataset: %w", writeErr)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

// Merge reconciles fresh observations against the existing dataset.
// Rows are scanned existing-first then fresh, and for any key present in
// both the fresh observation wins. Output order is the existing set's
// first-seen key order followed by genuinely new keys in fresh order.
// Merge(Merge(e, n), n) == Merge(e, n) for any inputs.
func Merge(existing, fresh []models.EnrichedRecord) []models.EnrichedRecord {
	index := make(map[string]int, len(existing)+len(fresh))
	out := make([]models.EnrichedRecord, 0, len(existing)+len(fresh))

	add := func(row models.EnrichedRecord) {
		key := row.Key()
		if i, ok := index[key]; ok {
			out[i] = row
			return
		}
		index[key] = len(out)
		out = append(out, row)
	}

	for _, row := range existing {
		add(row)
	}
	for _, row := range fresh {
		add(row)
	}
	return out
}

func formatRow(r *models.EnrichedRecord) []string {
	price := ""
	if r.Price != nil {
		price = strconv.FormatFloat(*r.Price, 'f', -1, 64)
	}
	return []string{
		r.Title,
		r.DetailURL,
		string(r.Listing),
		r.SourcePage,
		r.ScrapeDate,
		r.Author,
		price,
		r.Currency,
		strconv.FormatBool(r.IsFree),
		strings.Join(r.Genres, genreDelimiter),
		r.ThumbnailURL,
		r.ThumbnailPath,
	}
}

func parseRow(fields []string) (models.EnrichedRecord, error) {
	var row models.EnrichedRecord
	if len(fields) != len(columns) {
		return row, fmt.Errorf("row has %d fields, want %d", len(fields), len(columns))
	}

	row.Title = fields[0]
	row.DetailURL = fields[1]
	row.Listing = models.ListingType(fields[2])
	row.SourcePage = fields[3]
	row.ScrapeDate = fields[4]
	row.Author = fields[5]

	if fields[6] != "" {
		price, err := strconv.ParseFloat(fields[6], 64)
		if err != nil {
			return row, fmt.Errorf("price %q: %w", fields[6], err)
		}
		row.Price = &price
	}
	row.Currency = fields[7]

	isFree, err := strconv.ParseBool(fields[8])
	if err != nil {
		return row, fmt.Errorf("is_free %q: %w", fields[8], err)
	}
	row.IsFree = isFree

	if fields[9] != "" {
		row.Genres = strings.Split(fields[9], genreDelimiter)
	}
	row.ThumbnailURL = fields[10]
	row.ThumbnailPath = fields[11]
	return row, nil
}
