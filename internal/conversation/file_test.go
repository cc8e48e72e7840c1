package conversation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilePersisterMissingFile(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "absent.json"))

	sessions, err := p.Load()
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty sessions, got %d", len(sessions))
	}
}

func TestFilePersisterCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"U1": [{"user": "hi", "ai": "he`},
		{"garbage", "not json at all"},
		{"wrong shape", `["a", "b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "database.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err := NewFilePersister(path).Load()
			if !errors.Is(err, ErrStoreCorrupt) {
				t.Fatalf("expected ErrStoreCorrupt, got %v", err)
			}

			if _, err := os.Stat(path + ".corrupt"); err != nil {
				t.Errorf("corrupt file should be moved aside: %v", err)
			}

			// the store itself never fails on a corrupt file
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			store := Open(NewFilePersister(path))
			if len(store.Senders()) != 0 {
				t.Errorf("expected empty store from corrupt file")
			}
		})
	}
}

func TestFilePersisterNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	os.WriteFile(path, []byte("null"), 0o600)

	sessions, err := NewFilePersister(path).Load()
	if err != nil {
		t.Fatalf("null document: %v", err)
	}
	if sessions == nil {
		t.Error("expected non-nil empty sessions")
	}
}

func TestFilePersisterFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "database.json")
	p := NewFilePersister(path)

	err := p.Save(Sessions{"U1": {{User: "你好", AI: "a <b> & c"}}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	s := string(data)
	for _, want := range []string{`"U1"`, `"user": "你好"`, `"ai": "a <b> & c"`, "\n        {"} {
		if !strings.Contains(s, want) {
			t.Errorf("snapshot missing %q:\n%s", want, s)
		}
	}
}

func TestFilePersisterLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersister(filepath.Join(dir, "database.json"))

	for i := 0; i < 3; i++ {
		if err := p.Save(Sessions{"u": {turn(i)}}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the snapshot file, found %v", names)
	}
}

func TestReadOnlyFilePersisterLeavesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	os.WriteFile(path, []byte("not json"), 0o600)

	p := NewReadOnlyFilePersister(path)

	if _, err := p.Load(); !errors.Is(err, ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}
	if _, err := os.Stat(path + ".corrupt"); !os.IsNotExist(err) {
		t.Error("read-only load must not move the file")
	}
	if data, _ := os.ReadFile(path); string(data) != "not json" {
		t.Errorf("file should be untouched, got %q", data)
	}

	if err := p.Save(Sessions{}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}
