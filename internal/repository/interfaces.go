package repository

import (
	"github.com/rpattn/colmap/internal/session"
)

// SessionStateRepository persists serialized mapping sessions by key.
type SessionStateRepository interface {
	session.Store
}
