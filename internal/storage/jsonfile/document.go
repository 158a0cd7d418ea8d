package jsonfile

// Flat JSON documents keyed by string ids.
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so a crash mid-write never leaves a truncated document.
// A document that cannot be decoded is moved aside and treated as empty.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type document[T any] struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

func newDocument[T any](dir, name string, logger *zap.Logger) *document[T] {
	return &document[T]{
		path:   filepath.Join(dir, name),
		logger: logger.With(zap.String("document", name)),
		now:    time.Now,
	}
}

// view runs fn over the current contents without saving
func (d *document[T]) view(fn func(map[string]T)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := d.load()
	if err != nil {
		return err
	}
	fn(data)
	return nil
}

// update loads the document, lets fn mutate it and saves it back.
// Nothing is written if fn returns false or an error.
func (d *document[T]) update(fn func(map[string]T) (bool, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := d.load()
	if err != nil {
		return err
	}
	changed, err := fn(data)
	if err != nil || !changed {
		return err
	}
	return d.save(data)
}

func (d *document[T]) load() (map[string]T, error) {
	raw, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]T), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read: %w", d.path, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return make(map[string]T), nil
	}

	data := make(map[string]T)
	if trimmed[0] != '{' {
		err = errors.New("payload is not an object")
	} else {
		err = json.Unmarshal(trimmed, &data)
	}
	if err != nil {
		d.quarantine(err)
		return make(map[string]T), nil
	}
	return data, nil
}

func (d *document[T]) quarantine(cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", d.path, d.now().Unix())
	if err := os.Rename(d.path, aside); err != nil {
		d.logger.Error("Failed to quarantine corrupt document",
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
		return
	}
	d.logger.Error("Corrupt document moved aside, starting empty",
		zap.Error(cause),
		zap.String("quarantined_as", aside),
	)
}

func (d *document[T]) save(data map[string]T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("%s: encode: %w", d.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: create temp: %w", d.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: write temp: %w", d.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: sync temp: %w", d.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: close temp: %w", d.path, err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("%s: rename: %w", d.path, err)
	}
	return nil
}
