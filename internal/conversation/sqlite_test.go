package conversation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) (*SQLitePersister, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lantern.db")
	p, err := NewSQLitePersister(path)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	return p, path
}

func TestSQLitePersisterEmpty(t *testing.T) {
	p, _ := newTestSQLite(t)
	defer p.Close()

	sessions, err := p.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty, got %d senders", len(sessions))
	}
}

func TestSQLitePersisterRoundTrip(t *testing.T) {
	p, path := newTestSQLite(t)

	store := Open(p)
	for i := 1; i <= 7; i++ {
		if err := store.Append("U1", turn(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	store.Append("U2", Turn{User: "你好", AI: "灯"})
	store.Close()

	p2, err := NewSQLitePersister(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened := Open(p2)
	defer reopened.Close()

	if reopened.Len("U1") != 7 {
		t.Errorf("expected 7 turns for U1, got %d", reopened.Len("U1"))
	}

	recent := reopened.RecentTurns("U1", HistoryWindow)
	if recent[0] != turn(3) || recent[4] != turn(7) {
		t.Errorf("order not preserved: %+v", recent)
	}

	if got := reopened.RecentTurns("U2", 1); len(got) != 1 || got[0].AI != "灯" {
		t.Errorf("U2 turn mismatch: %+v", got)
	}
}

func TestSQLitePersisterSaveReplaces(t *testing.T) {
	p, _ := newTestSQLite(t)
	defer p.Close()

	p.Save(Sessions{"a": {turn(1), turn(2)}, "b": {turn(3)}})
	p.Save(Sessions{"a": {turn(9)}})

	sessions, err := p.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(sessions) != 1 || len(sessions["a"]) != 1 || sessions["a"][0] != turn(9) {
		t.Errorf("save should replace the previous snapshot, got %+v", sessions)
	}
}

func TestSQLitePersisterCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantern.db")
	garbage := []byte("this is not a sqlite database, just some text left behind by a bad copy\n")
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewSQLitePersister(path)
	if err != nil {
		t.Fatalf("corrupt file should be replaced, got %v", err)
	}

	store := Open(p)
	defer store.Close()

	if len(store.Senders()) != 0 {
		t.Errorf("expected empty store from corrupt file")
	}

	moved, err := os.ReadFile(path + ".corrupt")
	if err != nil {
		t.Fatalf("corrupt file should be moved aside: %v", err)
	}
	if string(moved) != string(garbage) {
		t.Errorf("quarantined content changed: %q", moved)
	}

	if err := store.Append("U1", turn(1)); err != nil {
		t.Fatalf("fresh database should accept writes: %v", err)
	}
}

func TestSQLiteReadOnly(t *testing.T) {
	p, path := newTestSQLite(t)
	p.Save(Sessions{"U1": {turn(1), turn(2)}})
	p.Close()

	ro, err := OpenSQLiteReadOnly(path)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	defer ro.Close()

	sessions, err := ro.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sessions["U1"]) != 2 {
		t.Errorf("expected 2 turns, got %+v", sessions)
	}

	if err := ro.Save(Sessions{}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestSQLiteReadOnlyCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantern.db")
	os.WriteFile(path, []byte("garbage"), 0o600)

	ro, err := OpenSQLiteReadOnly(path)
	if err == nil {
		_, err = ro.Load()
		ro.Close()
	}
	if err == nil {
		t.Fatal("expected an error for a corrupt database")
	}

	if _, statErr := os.Stat(path + ".corrupt"); !os.IsNotExist(statErr) {
		t.Error("read-only open must not move the file")
	}
	if data, _ := os.ReadFile(path); string(data) != "garbage" {
		t.Errorf("file should be untouched, got %q", data)
	}
}
