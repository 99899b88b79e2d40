package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/dealwatch/internal/collect"
)

// DefaultMaxEntries bounds the persisted history when no bound is configured.
const DefaultMaxEntries = 150

// Format tells which on-disk representation Load found.
type Format int

const (
	// FormatEmpty means no usable history: missing, blank or corrupt file.
	FormatEmpty Format = iota
	// FormatStructured is the current JSON array of thread ids.
	FormatStructured
	// FormatLegacy is the old single "last seen" id or link.
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatStructured:
		return "structured"
	case FormatLegacy:
		return "legacy"
	default:
		return "empty"
	}
}

// LoadResult is the outcome of reading the history file.
type LoadResult struct {
	Format Format
	IDs    []string
}

// Empty reports whether the history holds no ids.
func (r LoadResult) Empty() bool {
	return len(r.IDs) == 0
}

// FileStore keeps history as a JSON file.
type FileStore struct {
	path       string
	maxEntries int
	logger     *zap.Logger
}

// NewFileStore creates a file store. maxEntries <= 0 uses DefaultMaxEntries.
func NewFileStore(path string, maxEntries int, logger *zap.Logger) *FileStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &FileStore{path: path, maxEntries: maxEntries, logger: logger}
}

// Path returns the history file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted history. It never fails: anything it cannot
// understand is reported as FormatEmpty.
func (s *FileStore) Load() LoadResult {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading history file, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return LoadResult{Format: FormatEmpty}
	}

	res := Decode(data)
	switch res.Format {
	case FormatLegacy:
		s.logger.Info("migrating legacy history file",
			zap.String("path", s.path), zap.String("thread_id", res.IDs[0]))
	case FormatEmpty:
		if len(strings.TrimSpace(string(data))) > 0 {
			s.logger.Warn("history file unreadable, starting empty", zap.String("path", s.path))
		}
	}
	return res
}

// Decode interprets raw history file content.
func Decode(data []byte) LoadResult {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return LoadResult{Format: FormatEmpty}
	}

	var ids []string
	if err := json.Unmarshal([]byte(trimmed), &ids); err == nil {
		if ids == nil {
			return LoadResult{Format: FormatEmpty}
		}
		return LoadResult{Format: FormatStructured, IDs: ids}
	}

	if legacy, ok := decodeLegacy(trimmed); ok {
		return LoadResult{Format: FormatLegacy, IDs: []string{collect.ExtractThreadID(legacy)}}
	}
	return LoadResult{Format: FormatEmpty}
}

// decodeLegacy accepts a single bare token or a JSON string literal.
func decodeLegacy(s string) (string, bool) {
	var quoted string
	if err := json.Unmarshal([]byte(s), &quoted); err == nil {
		quoted = strings.TrimSpace(quoted)
		return quoted, quoted != ""
	}
	if strings.ContainsAny(s[:1], `[{"`) {
		return "", false
	}
	if strings.IndexFunc(s, isSpace) >= 0 {
		return "", false
	}
	return s, true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Save keeps the newest maxEntries ids and atomically replaces the file.
func (s *FileStore) Save(ids []string) error {
	ids = Truncate(ids, s.maxEntries)
	if ids == nil {
		ids = []string{}
	}

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp history file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp history file: %w", err)
	}
	return nil
}

// Truncate returns the last max ids, evicting the oldest first.
func Truncate(ids []string, max int) []string {
	if max > 0 && len(ids) > max {
		return ids[len(ids)-max:]
	}
	return ids
}
