package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
	"github.com/tidwall/sjson"
)

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

// SetEntries returns doc with each key in entries set to its scalar value.
// Keys are literal top-level names (dots are not path separators). Comments
// in doc are not preserved. An empty doc starts a new object.
func SetEntries(doc []byte, entries map[string]float64) ([]byte, error) {
	out := []byte("{}")
	if len(strings.TrimSpace(string(doc))) > 0 {
		std, err := hujson.Standardize(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out = std
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		updated, err := sjson.SetBytes(out, pathEscaper.Replace(k), entries[k])
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
		out = updated
	}
	if _, err := Parse(out); err != nil {
		return nil, err
	}
	formatted, err := hujson.Format(out)
	if err != nil {
		return out, nil
	}
	return formatted, nil
}

// WriteEntries updates the profile file at path in place with entries,
// creating it if needed. The write goes through a temp file and rename.
func WriteEntries(path string, entries map[string]float64) error {
	doc, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read profile: %w", err)
	}
	out, err := SetEntries(doc, entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.json")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp profile: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}
