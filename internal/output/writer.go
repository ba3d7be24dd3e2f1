// Package output persists crawl results to disk as JSON.
package output

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/model"
)

// WriteJSON writes records to path as an indented JSON array, creating
// parent directories as needed. The write goes through a temp file and
// a rename so an existing file is never left half-written.
func WriteJSON(path string, records []model.BusinessRecord) error {
	if path == "" {
		return eris.New("output: empty path")
	}
	if records == nil {
		records = []model.BusinessRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal records")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "output: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "output: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "output: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "output: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "output: rename to %s", path)
	}

	zap.L().Info("wrote output file", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}
