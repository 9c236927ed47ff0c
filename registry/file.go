package registry

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const txtHeader = `# Sources to monitor, one per line.
# Accepted forms: @channel, channel, https://t.me/channel
`

const yamlHeader = `# Sources to monitor.
`

// yamlFile is the layout of a .yaml/.yml registry.
type yamlFile struct {
	Sources []string `yaml:"sources"`
}

// FileRegistry reads sources from a text or YAML file. The change token is
// the file's modification time.
type FileRegistry struct {
	path   string
	isYAML bool
	logger *slog.Logger

	mu     sync.Mutex
	token  time.Time
	loaded bool
}

var _ Editor = (*FileRegistry)(nil)

// NewFileRegistry creates a registry backed by path. Files ending in .yaml or
// .yml use the YAML layout; anything else is one source per line.
func NewFileRegistry(path string, opts ...Option) *FileRegistry {
	s := applyOptions("file-registry", opts)
	ext := strings.ToLower(filepath.Ext(path))
	return &FileRegistry{
		path:   path,
		isYAML: ext == ".yaml" || ext == ".yml",
		logger: s.logger.With("path", path),
	}
}

// Path returns the backing file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Load reads the file. A missing file is created with a header and loads
// as an empty list.
func (r *FileRegistry) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, modTime, err := r.read()
	if errors.Is(err, fs.ErrNotExist) {
		if err := r.write(nil); err != nil {
			return nil, err
		}
		r.logger.Info("created empty source registry")
		ids, modTime, err = r.read()
	}
	if err != nil {
		return nil, err
	}

	r.token = modTime
	r.loaded = true
	return ids, nil
}

// Changed compares the file's modification time with the one seen by the
// last Load. A file deleted after loading counts as changed.
func (r *FileRegistry) Changed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return true, nil
	}
	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", r.path, err)
	}
	return !info.ModTime().Equal(r.token), nil
}

// Save replaces the file contents with ids.
func (r *FileRegistry) Save(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(normalizeAll(ids, r.logger))
}

// Add appends id to the file if it isn't listed yet.
func (r *FileRegistry) Add(ctx context.Context, id string) (bool, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	return r.edit(ctx, func(ids []string) ([]string, bool) {
		if slices.Contains(ids, normalized) {
			return ids, false
		}
		return append(ids, normalized), true
	})
}

// Remove deletes id from the file.
func (r *FileRegistry) Remove(ctx context.Context, id string) (bool, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	return r.edit(ctx, func(ids []string) ([]string, bool) {
		i := slices.Index(ids, normalized)
		if i < 0 {
			return ids, false
		}
		return slices.Delete(ids, i, i+1), true
	})
}

func (r *FileRegistry) edit(ctx context.Context, fn func([]string) ([]string, bool)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, _, err := r.read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	ids, changed := fn(ids)
	if !changed {
		return false, nil
	}
	return true, r.write(ids)
}

// read parses the file. Must be called with lock held.
func (r *FileRegistry) read() ([]string, time.Time, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, time.Time{}, err
	}

	var raw []string
	if r.isYAML {
		var doc yamlFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, time.Time{}, fmt.Errorf("parse %s: %w", r.path, err)
		}
		raw = doc.Sources
	} else {
		raw, err = parseLines(data)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("parse %s: %w", r.path, err)
		}
	}
	return normalizeAll(raw, r.logger), info.ModTime(), nil
}

// write replaces the file atomically. Must be called with lock held.
func (r *FileRegistry) write(ids []string) error {
	var buf bytes.Buffer
	if r.isYAML {
		buf.WriteString(yamlHeader)
		if ids == nil {
			ids = []string{}
		}
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(yamlFile{Sources: ids}); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else {
		buf.WriteString(txtHeader)
		for _, id := range ids {
			buf.WriteString(id)
			buf.WriteByte('\n')
		}
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// parseLines returns the non-blank lines that aren't # comments.
func parseLines(data []byte) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}
