package conversation

import "errors"

// HistoryWindow is how many prior turns are replayed into each prompt.
const HistoryWindow = 5

var (
	ErrStoreCorrupt = errors.New("session store corrupt")
	ErrFlushFailed  = errors.New("session store flush failed")
	ErrReadOnly     = errors.New("session store opened read-only")
)

// Turn is one recorded user/assistant exchange.
type Turn struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

// Sessions maps a sender id to that sender's turns, oldest first.
type Sessions map[string][]Turn

// Persister owns the durable copy of Sessions. Save always receives the whole
// store and must replace the previous snapshot atomically.
type Persister interface {
	Load() (Sessions, error)
	Save(Sessions) error
	Close() error
}
