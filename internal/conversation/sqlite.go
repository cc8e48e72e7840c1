package conversation

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/bowerhall/lantern/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
    sender_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    user_text TEXT NOT NULL,
    ai_text TEXT NOT NULL,
    PRIMARY KEY (sender_id, seq)
);
`

// SQLitePersister stores the snapshot as rows. Save replaces every row in one
// transaction, so a reader always sees one complete snapshot.
type SQLitePersister struct {
	db       *sql.DB
	readOnly bool
}

// NewSQLitePersister opens or creates the database at path. An existing file
// that cannot be opened as this store is moved to <path>.corrupt and a fresh
// database is created in its place.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := openSQLite(path)
	if err == nil {
		return &SQLitePersister{db: db}, nil
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}

	logger.Warn("sqlite store unreadable, starting empty", "path", path, "error", err)

	if qerr := quarantine(path); qerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Rename(path+suffix, path+".corrupt"+suffix)
	}

	db, err = openSQLite(path)
	if err != nil {
		return nil, err
	}

	return &SQLitePersister{db: db}, nil
}

// OpenSQLiteReadOnly opens an existing database for inspection. The file is
// never created, migrated or moved; Save fails with ErrReadOnly.
func OpenSQLiteReadOnly(path string) (*SQLitePersister, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	return &SQLitePersister{db: db, readOnly: true}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// one connection: writes are already serialized by the Store
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStoreCorrupt, err)
	}

	return db, nil
}

func (p *SQLitePersister) Load() (Sessions, error) {
	rows, err := p.db.Query(`
		SELECT sender_id, user_text, ai_text
		FROM turns
		ORDER BY sender_id, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	defer rows.Close()

	sessions := make(Sessions)
	for rows.Next() {
		var sender string
		var t Turn
		if err := rows.Scan(&sender, &t.User, &t.AI); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		sessions[sender] = append(sessions[sender], t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	return sessions, nil
}

func (p *SQLitePersister) Save(sessions Sessions) error {
	if p.readOnly {
		return ErrReadOnly
	}

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM turns`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO turns (sender_id, seq, user_text, ai_text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for sender, turns := range sessions {
		for i, t := range turns {
			if _, err := stmt.Exec(sender, i, t.User, t.AI); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

