package ports

import (
	"context"

	"github.com/aretw0/tabkeeper/pkg/domain"
)

// SessionStore defines the interface for holding session documents.
// Implementations must copy on Save and on Load so callers never share
// memory with the stored document.
type SessionStore interface {
	// Save persists the document for a given session ID.
	Save(ctx context.Context, sessionID string, session *domain.Session) error

	// Load retrieves the document for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the document for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of stored sessions.
	List(ctx context.Context) ([]string, error)
}
