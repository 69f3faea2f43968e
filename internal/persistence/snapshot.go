// Package persistence writes and reads whole-store snapshots.
//
// Two on-disk formats exist. Paths ending in .bolt or .db hold a BoltDB
// file with one bucket of records keyed by position; anything else is a
// JSON document per line. Both are written to a temporary file beside the
// target and renamed into place, so readers never see a partial snapshot.
package persistence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ASHISH26940/pipekv/internal/store"
)

var (
	// ErrSnapshot wraps every failure to write or read a snapshot.
	ErrSnapshot = errors.New("snapshot failed")
	// ErrBadFileName is returned when a client file name escapes the
	// snapshot directory.
	ErrBadFileName = errors.New("bad snapshot file name")
)

// Format is an on-disk snapshot encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatBolt
)

func (f Format) String() string {
	if f == FormatBolt {
		return "bolt"
	}
	return "json"
}

// FormatFor picks the format from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bolt", ".db":
		return FormatBolt
	default:
		return FormatJSON
	}
}

// entry is the persisted shape of a record. Recency stamps are transient.
// Values that are not valid UTF-8 travel in Raw (base64 in JSON) because
// encoding/json would replace the invalid bytes.
type entry struct {
	Tag   *int64 `json:"tag"`
	Value string `json:"value"`
	Raw   []byte `json:"raw,omitempty"`
	Age   int64  `json:"age,omitempty"`
}

func toEntry(rec store.Record) entry {
	tag := rec.Tag
	e := entry{Tag: &tag, Age: rec.Age}
	if utf8.ValidString(rec.Value) {
		e.Value = rec.Value
	} else {
		e.Raw = []byte(rec.Value)
	}
	return e
}

func (e entry) record() (store.Record, error) {
	if e.Tag == nil {
		return store.Record{}, errors.New("missing tag")
	}
	rec := store.Record{Tag: *e.Tag, Value: e.Value, Age: e.Age}
	if e.Raw != nil {
		rec.Value = string(e.Raw)
	}
	return rec, nil
}

// Resolve maps a client-supplied file name onto a path. With an empty dir
// the name is used verbatim; otherwise it must be a local relative path and
// is placed inside dir.
func Resolve(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrBadFileName)
	}
	if dir == "" {
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrBadFileName, name)
	}
	return filepath.Join(dir, name), nil
}

// Save writes records to path atomically.
func Save(path string, records []store.Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSnapshot, path, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSnapshot, path, err)
	}
	tmpName := tmp.Name()

	switch FormatFor(path) {
	case FormatBolt:
		// bolt opens the file itself; it initializes an empty one.
		if err = tmp.Close(); err == nil {
			err = writeBolt(tmpName, records)
		}
	default:
		err = writeJSON(tmp, records)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSnapshot, path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSnapshot, path, err)
	}
	return nil
}

// Load reads every record from path. Nothing is returned unless the whole
// file decodes.
func Load(path string) ([]store.Record, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshot, path, err)
	}

	var (
		records []store.Record
		err     error
	)
	switch FormatFor(path) {
	case FormatBolt:
		records, err = readBolt(path)
	default:
		records, err = readJSON(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshot, path, err)
	}
	return records, nil
}

func writeJSON(f *os.File, records []store.Record) error {
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(toEntry(rec)); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func readJSON(path string) ([]store.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []store.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := e.record()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
