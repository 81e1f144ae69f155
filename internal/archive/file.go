package archive

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lox/cardroom/internal/fileutil"
)

// FileStore writes one JSON document per game into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(gameID string) string {
	return filepath.Join(s.dir, "game-"+gameID+".json")
}

// Save writes the record atomically, so readers never see a partial file.
func (s *FileStore) Save(_ context.Context, rec Record) error {
	return fileutil.WriteJSON(s.path(rec.GameID), rec, 0o644)
}

// Recent reads every archived game and returns up to limit, newest first.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "game-") || filepath.Ext(name) != ".json" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		out = append(out, rec)
	}

	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(b.EndedAt.Compare(a.EndedAt), strings.Compare(a.GameID, b.GameID))
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
