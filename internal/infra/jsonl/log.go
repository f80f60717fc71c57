// Package jsonl implements an append-only, line-delimited JSON file.
// Each record is written with a single write call followed by fsync. A record that
// was not fully written is cut off again, so the file always ends on a line boundary.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type Log struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Open creates the file and its parent directory when missing. A trailing partial
// line left by an interrupted write is truncated before the log accepts appends.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("jsonl path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := trimTornTail(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("repair %s: %w", path, err)
	}
	return &Log{path: path, file: f}, nil
}

// trimTornTail truncates f after its last newline.
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}
	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		start := end - int64(len(buf))
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return nil
			}
			return truncate(f, keep)
		}
		end = start
	}
	return truncate(f, 0)
}

func truncate(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return err
	}
	return f.Sync()
}

func (l *Log) Path() string {
	return l.path
}

// Append writes v as one JSON line. The record is durable when Append returns nil.
func (l *Log) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if bytes.IndexByte(line, '\n') >= 0 {
		return errors.New("record encodes to multiple lines")
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("jsonl log closed")
	}
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	offset := info.Size()

	n, err := l.file.Write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		if terr := truncate(l.file, offset); terr != nil {
			return fmt.Errorf("write %s: %w (rollback: %v)", l.path, err, terr)
		}
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	return nil
}

// Scan calls fn for every non-empty line in file order. Lines are passed without the
// trailing newline, including a final line that was cut short.
func (l *Log) Scan(fn func(line []byte) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				if ferr := fn(trimmed); ferr != nil {
					return ferr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s: %w", l.path, err)
		}
	}
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
