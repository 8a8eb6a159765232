// Package state persists dialog sessions in SQLite.
package state

import (
	"io"
	"time"

	"github.com/erentorlak/todv2/pkg/models"
)

// SessionStore handles session persistence. Getters return (nil, nil) when
// the session does not exist.
type SessionStore interface {
	CreateSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	SaveSession(s *models.Session) error
	DeleteSession(id string) error
	ListSessions() ([]SessionInfo, error)
	PurgeOldSessions(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is a closable session store.
type Store interface {
	io.Closer
	SessionStore
}

// SessionInfo is the listing view of a stored session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Intent    string    `json:"intent,omitempty"`
	Ended     bool      `json:"ended"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Compile-time verification that the stores implement the interfaces.
var (
	_ Store    = (*DB)(nil)
	_ Migrator = (*DB)(nil)
	_ Store    = (*Memory)(nil)
)
