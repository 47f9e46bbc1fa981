package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const fileSuffix = ".cache"

// fileEntry is the on-disk record. Data is the opaque serialized payload;
// timestamps are epoch seconds. The logical key is stored alongside the
// payload so scans can report and match logical names even though filenames
// are hashes.
type fileEntry struct {
	Key     string `json:"key"`
	Data    []byte `json:"data"`
	Created int64  `json:"created"`
	Expires int64  `json:"expires"`
}

// FileStore keeps one file per entry under a single directory. Writes go to a
// temp file in the same directory followed by a rename, so readers never
// observe a partially written entry. Expired entries are removed lazily on
// read and eagerly by Cleanup; both paths tolerate another process removing
// the same file first.
type FileStore struct {
	dir string
	now func() time.Time
}

// FileStoreOption customises a FileStore.
type FileStoreOption func(*FileStore)

// WithNow overrides the clock used for expiry comparisons, primarily for tests.
func WithNow(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFileStore creates the cache directory if needed and returns a store over it.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}

	s := &FileStore{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the payload for key. Missing, expired and unreadable entries
// all report found=false; expired and corrupt files are removed on the way out.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	path := s.path(key)
	entry, err := s.readEntry(path)
	if err != nil {
		if errors.Is(err, errCorruptEntry) {
			_ = os.Remove(path)
		}
		return nil, false, nil
	}

	if s.expired(entry) {
		_ = os.Remove(path)
		return nil, false, nil
	}

	return entry.Data, true, nil
}

// Set stores value under key, replacing any existing entry atomically.
func (s *FileStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("cache: ttl must be positive")
	}

	now := s.now()
	entry := fileEntry{
		Key:     key,
		Data:    value,
		Created: now.Unix(),
		Expires: now.Add(ttl).Unix(),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "write-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: close entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: replace entry: %w", err)
	}
	return nil
}

// Delete removes the named entries, reporting how many existed.
func (s *FileStore) Delete(ctx context.Context, keys ...string) (int, error) {
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		err := os.Remove(s.path(key))
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
			// absent key, nothing to do
		default:
			return removed, fmt.Errorf("cache: delete %q: %w", key, err)
		}
	}
	return removed, nil
}

// Has reports whether key resolves to a live entry.
func (s *FileStore) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

// Keys lists the logical names of all live entries.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	paths, err := s.entryPaths()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := s.readEntry(path)
		if err != nil || s.expired(entry) {
			continue
		}
		keys = append(keys, entry.Key)
	}
	return keys, nil
}

// Clear removes every entry unconditionally.
func (s *FileStore) Clear(ctx context.Context) (int, error) {
	paths, err := s.entryPaths()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed, nil
}

// Cleanup removes expired and unreadable entries, reporting how many it
// removed. Concurrent invocations are safe: each entry is inspected and
// removed independently, and a file already removed by another run simply
// counts as absent.
func (s *FileStore) Cleanup(ctx context.Context) (int, error) {
	paths, err := s.entryPaths()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		entry, err := s.readEntry(path)
		if err == nil && !s.expired(entry) {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats scans the directory and returns a snapshot. Unreadable entries count
// as expired. The scan is read-only; entries stay on disk for Cleanup.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	paths, err := s.entryPaths()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		info, err := os.Stat(path)
		if err != nil {
			continue // removed between scan and stat
		}
		stats.TotalEntries++
		stats.TotalSizeBytes += info.Size()

		entry, err := s.readEntry(path)
		if err != nil || s.expired(entry) {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
	}
	return stats, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, DeriveKey(key)+fileSuffix)
}

func (s *FileStore) entryPaths() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("cache: scan directory: %w", err)
	}
	return paths, nil
}

// errCorruptEntry marks a file that exists but does not decode.
var errCorruptEntry = errors.New("cache: corrupt entry")

// readEntry loads and decodes one entry. It never modifies the file; whether
// an unreadable entry gets removed, and whether that removal is counted, is
// the caller's decision.
func (s *FileStore) readEntry(path string) (fileEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileEntry{}, err
	}

	var entry fileEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fileEntry{}, errCorruptEntry
	}
	return entry, nil
}

func (s *FileStore) expired(entry fileEntry) bool {
	return s.now().Unix() > entry.Expires
}
