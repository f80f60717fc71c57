package jsonl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLog_AppendAndScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()

	for i := 1; i <= 3; i++ {
		if err := log.Append(map[string]any{"n": i, "text": "line\nbreak"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var seen []int
	err = log.Scan(func(line []byte) error {
		var rec struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		seen = append(seen, rec.N)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected records %v", seen)
	}
}

func TestLog_ConcurrentAppendsStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := log.Append(map[string]any{"n": i, "pad": string(make([]byte, 512))}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	if err := log.Scan(func(line []byte) error {
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("interleaved line: %v", err)
		}
		count++
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 40 {
		t.Fatalf("expected 40 lines, got %d", count)
	}
}

func TestLog_ScanMissingFile(t *testing.T) {
	log := &Log{path: filepath.Join(t.TempDir(), "absent.jsonl")}
	called := false
	if err := log.Scan(func([]byte) error { called = true; return nil }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if called {
		t.Fatal("expected no lines")
	}
}

func TestLog_ScanIncludesTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte("{\"n\":1}\n{\"n\":"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	log := &Log{path: path}
	var lines []string
	if err := log.Scan(func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(lines) != 2 || lines[1] != `{"n":` {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestLog_OpenTrimsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte("{\"n\":1}\n{\"n\":2"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()
	if err := log.Append(map[string]int{"n": 3}); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "{\"n\":1}\n{\"n\":3}\n" {
		t.Fatalf("unexpected contents %q", raw)
	}
}

func TestLog_OpenTrimsTailWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte(`{"trace_id":"other","ts":"2026`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected torn line to be dropped, size=%d", info.Size())
	}
}

func TestLog_OpenKeepsCompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	seed := "{\"n\":1}\n{\"n\":2}\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != seed {
		t.Fatalf("complete file was modified: %q", raw)
	}
}
