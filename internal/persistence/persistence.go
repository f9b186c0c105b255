// Package persistence implements the snapshot export/import engine: a
// line-oriented "key:value\n" format, exported atomically via a
// write-temp-then-link-then-unlink dance, and imported with a presized
// store and a buffered line scanner.
package persistence

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dirbookd/server/internal/store"
	"github.com/dirbookd/server/internal/types"
)

// Export writes the full contents of s to path atomically: the store is
// serialized to "path.tmp", the old "path" (if any) is removed, "path.tmp"
// is hard-linked to "path", and the temp file is then unlinked. A crash at
// any point during this sequence leaves either the previous snapshot or
// the new one intact on disk, never a partial file at path; between the
// removal of the old "path" and the link, the new snapshot exists only
// as "path.tmp".
func Export(s *store.Store, path string) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("persistence: open temp snapshot: %w", err)
	}

	w := bufio.NewWriter(f)
	var writeErr error
	s.Iterate(func(r store.Record) bool {
		if _, err := fmt.Fprintf(w, "%s%c%s\n", r.Key, types.KeyValueSeparator, r.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: write temp snapshot: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: close temp snapshot: %w", closeErr)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persistence: remove previous snapshot: %w", err)
	}
	if err := os.Link(tmpPath, path); err != nil {
		return fmt.Errorf("persistence: link new snapshot: %w", err)
	}
	if err := os.Remove(tmpPath); err != nil {
		return fmt.Errorf("persistence: unlink temp snapshot: %w", err)
	}
	return nil
}

// Import reads a snapshot file of the given store kind, presizing the
// resulting store's capacity from the file's line count. Lines that fail
// validation are skipped (and reported via the optional onInvalid
// callback) rather than aborting the load.
func Import(path string, kind types.StoreKind, onInvalid func(lineNo int, line string)) (*store.Store, error) {
	lineCount, err := countLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.New(kind), nil
		}
		return nil, fmt.Errorf("persistence: count lines: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open snapshot: %w", err)
	}
	defer f.Close()

	s := store.NewWithCapacity(kind, lineCount)
	lastKey := ""
	appendOnly := true

	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, types.BuffSize), types.BuffSize*4)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, ok := splitRecordLine(line)
		if !ok || !types.ValidKey(kind, key) || !types.ValidValue(kind, value) {
			if onInvalid != nil {
				onInvalid(lineNo, line)
			}
			continue
		}
		if appendOnly && key > lastKey {
			s.AppendSorted(key, value)
			lastKey = key
		} else {
			appendOnly = false
			if err := s.Insert(key, value); err != nil && onInvalid != nil {
				onInvalid(lineNo, line)
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("persistence: read snapshot: %w", err)
	}
	return s, nil
}

// splitRecordLine splits a "key:value" line on the first separator. No
// escaping exists: the validators forbid ':' in keys and values already,
// so the first occurrence is authoritative.
func splitRecordLine(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, types.KeyValueSeparator)
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				count++
			}
		}
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
