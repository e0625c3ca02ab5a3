package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"compliance-ingestion-service/internal/models"
)

// keyedLocker serializes pipeline work per (tenant, entityType, identity key
// value) so two concurrent ingestions carrying the same identity key cannot
// both take the create path. The per-tenant unique index on the primary
// identity column remains the hard backstop for multi-process deployments.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*lockEntry)}
}

func identityLockKey(tenantID uuid.UUID, entityType models.EntityType, identityValue string) string {
	return fmt.Sprintf("%s|%s|%s", tenantID, entityType, identityValue)
}

// Lock acquires the mutex for key, creating it on first use. The returned
// function releases the mutex and drops the entry once no goroutine holds it.
func (l *keyedLocker) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
