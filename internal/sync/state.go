package sync

import (
	stdsync "sync"

	"github.com/dkomarov/curio/internal/models"
)

// Per-identifier sync states. Clean identifiers are absent from the table.
//
//	Clean → Dirty → Syncing → Clean        shadow write succeeded
//	                Syncing → Dirty        shadow write failed
//	                Syncing → SyncingDirty local mutation while in flight
//
// SyncingDirty lets an in-flight write complete while guaranteeing the
// identifier is re-pushed afterwards: the latest local state always goes
// out, even if intermediate states are skipped.
type state int

const (
	stateDirty state = iota + 1
	stateSyncing
	stateSyncingDirty
)

type key struct {
	kind models.Kind
	id   string
}

type stateTable struct {
	mu     stdsync.Mutex
	states map[key]state
}

func newStateTable() *stateTable {
	return &stateTable{states: make(map[key]state)}
}

// markDirty records a local mutation. Returns true when the identifier
// newly needs scheduling (it was Clean).
func (t *stateTable) markDirty(k key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.states[k] {
	case 0:
		t.states[k] = stateDirty
		return true
	case stateSyncing:
		t.states[k] = stateSyncingDirty
	}
	return false
}

// beginSync transitions Dirty → Syncing. Returns false when the identifier
// is not Dirty, enforcing at most one in-flight write per identifier.
func (t *stateTable) beginSync(k key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[k] != stateDirty {
		return false
	}
	t.states[k] = stateSyncing
	return true
}

// finishSync completes an in-flight write. The returned bool reports
// whether the identifier is still dirty and needs another pass.
func (t *stateTable) finishSync(k key, ok bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.states[k] {
	case stateSyncingDirty:
		t.states[k] = stateDirty
		return true
	case stateSyncing:
		if ok {
			delete(t.states, k)
			return false
		}
		t.states[k] = stateDirty
		return true
	default:
		return false
	}
}

// dirty reports whether the identifier currently needs a shadow write.
func (t *stateTable) dirty(k key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.states[k]
	return s == stateDirty || s == stateSyncingDirty
}
