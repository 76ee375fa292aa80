package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileStore is a brute-force vector store over one JSON index file.
//
// Writes are full read-modify-write cycles with an atomic rename, so
// concurrent readers observe a stale-but-consistent prior snapshot.
// Concurrent writers are NOT safe; indexing jobs must not overlap.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the index file path.
func (s *FileStore) Path() string { return s.path }

// load reads the index file. A missing file yields an empty index; a
// corrupt file is reinitialized with a warning rather than crashing.
func (s *FileStore) load() []Event {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read index file, starting empty", "path", s.path, "error", err)
		}
		return nil
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		s.logger.Warn("Corrupt index file, reinitializing", "path", s.path, "error", err)
		return nil
	}
	return events
}

// write persists the full index atomically (temp file + rename).
func (s *FileStore) write(events []Event) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}

	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Upsert merges events into the index keyed by EventID. Existing records
// are replaced in place, preserving their insertion order; new records
// append. Any event without an embedding fails the whole call.
func (s *FileStore) Upsert(_ context.Context, events []Event) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
		if len(events[i].Embedding) == 0 {
			return fmt.Errorf("event %s has no embedding", events[i].EventID)
		}
	}

	existing := s.load()
	index := make(map[string]int, len(existing))
	for i := range existing {
		index[existing[i].EventID] = i
	}

	for _, e := range events {
		if i, ok := index[e.EventID]; ok {
			existing[i] = e
			continue
		}
		index[e.EventID] = len(existing)
		existing = append(existing, e)
	}

	return s.write(existing)
}

// Search embeds the query and ranks all matching records by dot product
// (vectors are unit length, so this is cosine similarity). Results are
// descending by score; ties keep insertion order. since is an inclusive
// lower bound applied before scoring.
func (s *FileStore) Search(ctx context.Context, query string, embedder Embedder, topK int, filters Filters, since *time.Time) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var hits []Hit
	for _, e := range s.load() {
		if !filters.Match(&e) {
			continue
		}
		if since != nil && e.Timestamp.Before(*since) {
			continue
		}
		if len(e.Embedding) == 0 {
			continue
		}
		hits = append(hits, Hit{
			ID:    e.EventID,
			Event: e,
			Score: dot(queryVec, e.Embedding),
		})
	}

	// Stable sort keeps original insertion order for equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Events returns the current index snapshot. The graph summarizer's
// fallback path scans these records for exact tag matches.
func (s *FileStore) Events() []Event {
	return s.load()
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
