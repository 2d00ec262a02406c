// Package offload keeps the cross-domain handle mappings for buffers shared
// between memory domains.
package offload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

// DefaultCapacity is the slot count of the process-wide table
const DefaultCapacity = 8

// ComponentOffload identifies offload table errors
const ComponentOffload = "offload"

// Mapping links a handle in a remote memory domain to a local buffer.
type Mapping struct {
	Domain     uint32    // remote memory domain
	Remote     uint64    // handle inside that domain
	Local      uuid.UUID // local buffer ID
	Name       string
	Registered time.Time
}

type slot struct {
	used bool
	m    Mapping
}

// Table is a fixed-capacity registry guarded by one mutex. Its lock covers
// only the table, never the buffers it maps.
type Table struct {
	mu    sync.RWMutex
	slots []slot
	count int
	log   logger.Logger
}

var (
	defaultTable *Table
	defaultOnce  sync.Once
)

// Default returns the process-wide table
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable(DefaultCapacity)
	})
	return defaultTable
}

// NewTable returns an empty table with capacity slots. capacity < 1 uses DefaultCapacity.
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Table{
		slots: make([]slot, capacity),
		log:   logger.Global().Module("offload"),
	}
}

// Register adds m. A mapping whose remote handle or local buffer is already
// registered is a conflict; a full table is a limit error.
func (t *Table) Register(m Mapping) error {
	if m.Local == uuid.Nil {
		return errors.Newf("offload: mapping without local buffer").
			Component(ComponentOffload).
			Category(errors.CategoryValidation).
			Context("domain", m.Domain).
			Build()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	free := -1
	for i := range t.slots {
		s := &t.slots[i]
		if !s.used {
			if free < 0 {
				free = i
			}
			continue
		}
		if (s.m.Domain == m.Domain && s.m.Remote == m.Remote) || s.m.Local == m.Local {
			return errors.Newf("offload: mapping already registered").
				Component(ComponentOffload).
				Category(errors.CategoryConflict).
				Context("domain", m.Domain).
				Context("remote", m.Remote).
				Context("local", m.Local.String()).
				Build()
		}
	}
	if free < 0 {
		return errors.Newf("offload: table full").
			Component(ComponentOffload).
			Category(errors.CategoryLimit).
			Context("capacity", len(t.slots)).
			Build()
	}

	if m.Registered.IsZero() {
		m.Registered = time.Now()
	}
	t.slots[free] = slot{used: true, m: m}
	t.count++

	t.log.Debug("offload mapping registered",
		logger.Int64("domain", int64(m.Domain)),
		logger.Uint64("remote", m.Remote),
		logger.String("local", m.Local.String()),
		logger.Int("used", t.count))
	return nil
}

// Lookup finds the mapping for a remote handle.
func (t *Table) Lookup(domain uint32, remote uint64) (Mapping, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if i := t.find(domain, remote); i >= 0 {
		return t.slots[i].m, nil
	}
	return Mapping{}, notFound(domain, remote)
}

// LookupLocal finds the mapping of a local buffer.
func (t *Table) LookupLocal(local uuid.UUID) (Mapping, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.slots {
		if t.slots[i].used && t.slots[i].m.Local == local {
			return t.slots[i].m, nil
		}
	}
	return Mapping{}, errors.Newf("offload: no mapping for local buffer").
		Component(ComponentOffload).
		Category(errors.CategoryNotFound).
		Context("local", local.String()).
		Build()
}

// Deregister removes the mapping for a remote handle.
func (t *Table) Deregister(domain uint32, remote uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.find(domain, remote)
	if i < 0 {
		return notFound(domain, remote)
	}
	t.slots[i] = slot{}
	t.count--

	t.log.Debug("offload mapping removed",
		logger.Int64("domain", int64(domain)),
		logger.Uint64("remote", remote),
		logger.Int("used", t.count))
	return nil
}

// Len returns the number of registered mappings
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Cap returns the slot count
func (t *Table) Cap() int { return len(t.slots) }

func (t *Table) find(domain uint32, remote uint64) int {
	for i := range t.slots {
		s := &t.slots[i]
		if s.used && s.m.Domain == domain && s.m.Remote == remote {
			return i
		}
	}
	return -1
}

func notFound(domain uint32, remote uint64) error {
	return errors.Newf("offload: no mapping for remote handle").
		Component(ComponentOffload).
		Category(errors.CategoryNotFound).
		Context("domain", domain).
		Context("remote", remote).
		Build()
}
