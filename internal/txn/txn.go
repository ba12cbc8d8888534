// Package txn implements the single-writer, pre-image transaction log:
// a fixed-size slot table of in-flight transactions, each owning a
// list of RowChange records that let rollback undo a mutation in
// place without a write-ahead log.
package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/minidb/minidb/internal/btree"
	"github.com/minidb/minidb/internal/pager"
)

// State is a transaction's lifecycle stage.
type State int

const (
	Idle State = iota
	Active
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ChangeKind distinguishes the three ways a leaf cell can be mutated,
// since undoing each takes a different shape: an inserted cell is
// deleted, an updated cell's value is restored, and a deleted cell is
// reinserted at its original slot.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

// RowChange is one pre-image: enough to undo a single leaf cell
// mutation on the page it occurred on. Changes are appended to a
// transaction's list as they're recorded, and rollback walks the list
// from the end, newest-first.
type RowChange struct {
	Pager    *pager.Pager
	Schema   btree.Schema
	PageNum  int
	CellNum  int
	Key      uint32
	OldBytes []byte
	Kind     ChangeKind
}

// apply undoes the mutation this change recorded.
func (c *RowChange) apply() error {
	buf, err := c.Pager.Fetch(c.PageNum)
	if err != nil {
		return err
	}
	switch c.Kind {
	case ChangeInsert:
		return btree.DeleteAt(buf, c.Schema, c.CellNum)
	case ChangeUpdate:
		btree.WriteCell(buf, c.Schema, c.CellNum, c.Key, c.OldBytes)
		return nil
	case ChangeDelete:
		return btree.InsertAt(buf, c.Schema, c.CellNum, c.Key, c.OldBytes)
	default:
		return fmt.Errorf("txn: unknown change kind %d", c.Kind)
	}
}

// Transaction tracks one in-flight (or just-finished) unit of work.
// Its change list is exclusively owned by it: the list is consumed on
// commit (discarded) or rollback (applied, newest-first, then
// discarded).
type Transaction struct {
	ID        uint32
	State     State
	StartTime time.Time
	changes   []RowChange
}

// ChangeCount reports how many pre-images this transaction holds.
func (t *Transaction) ChangeCount() int { return len(t.changes) }

// Errors returned by Manager operations.
var (
	ErrManagerDisabled   = fmt.Errorf("transaction manager disabled")
	ErrCapacityExceeded  = fmt.Errorf("transaction capacity exceeded")
	ErrNoSlot            = fmt.Errorf("no available transaction slot")
	ErrNoSuchTransaction = fmt.Errorf("no such transaction")
	ErrNotActive         = fmt.Errorf("transaction not active")
)

// Manager is the fixed-size slot table of in-flight transactions. All
// begin/commit/rollback state changes hold the manager-wide mutex for
// their duration, matching the single-writer design: there is no
// per-transaction locking finer than this.
type Manager struct {
	mu       sync.Mutex
	slots    []*Transaction
	enabled  bool
	nextID   uint32
}

// NewManager returns a disabled manager with capacity slots.
func NewManager(capacity int) *Manager {
	return &Manager{
		slots:  make([]*Transaction, capacity),
		nextID: 1,
	}
}

// Enable turns transaction support on.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Disable turns transaction support off. Fails if any transaction is
// currently active.
func (m *Manager) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.slots {
		if t != nil && t.State == Active {
			return fmt.Errorf("txn: cannot disable: transaction %d is active", t.ID)
		}
	}
	m.enabled = false
	return nil
}

// Enabled reports whether transaction support is currently on.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Manager) findSlot(id uint32) int {
	for i, t := range m.slots {
		if t != nil && t.ID == id {
			return i
		}
	}
	return -1
}

// Begin allocates a slot and assigns the next monotonic id, skipping
// zero (zero means "no transaction") on wraparound.
func (m *Manager) Begin() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return 0, ErrManagerDisabled
	}
	free := -1
	count := 0
	for i, t := range m.slots {
		if t == nil {
			if free < 0 {
				free = i
			}
		} else {
			count++
		}
	}
	if count >= len(m.slots) {
		return 0, ErrCapacityExceeded
	}
	if free < 0 {
		return 0, ErrNoSlot
	}

	id := m.nextID
	m.nextID++
	if m.nextID == 0 {
		m.nextID = 1
	}

	m.slots[free] = &Transaction{ID: id, State: Active, StartTime: time.Now()}
	return id, nil
}

// RecordChange appends ch to txn id's list. It is a no-op (not an
// error) if the manager is disabled or the transaction is not active,
// matching the original's "record only while active" contract — a
// caller that mutates outside a transaction has nothing to record
// into.
func (m *Manager) RecordChange(id uint32, ch RowChange) {
	if id == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	idx := m.findSlot(id)
	if idx < 0 || m.slots[idx].State != Active {
		return
	}
	t := m.slots[idx]
	t.changes = append(t.changes, ch)
}

// Commit discards txn id's pre-images (no replay needed) and frees its
// slot.
func (m *Manager) Commit(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || id == 0 {
		return ErrManagerDisabled
	}
	idx := m.findSlot(id)
	if idx < 0 {
		return ErrNoSuchTransaction
	}
	if m.slots[idx].State != Active {
		return ErrNotActive
	}
	m.slots[idx] = nil
	return nil
}

// Rollback applies txn id's pre-images newest-first, restoring every
// mutated page to its pre-transaction state, then frees the slot.
func (m *Manager) Rollback(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || id == 0 {
		return ErrManagerDisabled
	}
	idx := m.findSlot(id)
	if idx < 0 {
		return ErrNoSuchTransaction
	}
	t := m.slots[idx]
	if t.State != Active {
		return ErrNotActive
	}
	for i := len(t.changes) - 1; i >= 0; i-- {
		if err := t.changes[i].apply(); err != nil {
			return fmt.Errorf("txn %d: rollback: %w", id, err)
		}
	}
	m.slots[idx] = nil
	return nil
}

// Status returns a snapshot of txn id's state and change count.
func (m *Manager) Status(id uint32) (State, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.findSlot(id)
	if idx < 0 {
		return Idle, 0, ErrNoSuchTransaction
	}
	t := m.slots[idx]
	return t.State, len(t.changes), nil
}

// IsActive reports whether id names a currently-active transaction.
func (m *Manager) IsActive(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || id == 0 {
		return false
	}
	idx := m.findSlot(id)
	return idx >= 0 && m.slots[idx].State == Active
}
