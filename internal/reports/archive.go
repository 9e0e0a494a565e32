package reports

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Archive keeps JSON reports under Root.
type Archive struct {
	Root string
}

// Save writes v as indented JSON to
// <Root>/<kind>/<kind>-<timestamp>-<suffix>.json and returns the relative
// key. Keys are unique per call and an existing file is never overwritten.
func (a Archive) Save(kind string, at time.Time, v any) (string, error) {
	if strings.ContainsAny(kind, `/\.`) || kind == "" {
		return "", fmt.Errorf("invalid report kind %q", kind)
	}
	name := fmt.Sprintf("%s-%s-%s.json", kind, at.UTC().Format("20060102T150405.000000000Z"), uuid.NewString()[:8])
	key := filepath.Join(kind, name)
	abs := filepath.Join(a.Root, key)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return key, nil
}

func (a Archive) Open(key string) (io.ReadCloser, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid report key %q", key)
	}
	return os.Open(filepath.Join(a.Root, clean))
}

func (a Archive) Exists(key string) bool {
	_, err := os.Stat(filepath.Join(a.Root, filepath.Clean(key)))
	return err == nil
}
