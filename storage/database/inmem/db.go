package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/coursework"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
)

type (
	// DB keeps every table in memory. Stored values are never mutated in place, so a snapshot only copies maps.
	DB struct {
		txMu sync.Mutex
		mu   sync.RWMutex
		tables
	}

	tables struct {
		users      map[string]user.User
		groups     map[string]group.Group
		events     map[string]calendar.Event
		exceptions map[string]map[string]calendar.Exception // series id -> date -> exception
		lectures   map[string]calendar.Lecture
		templates  map[string]coursework.Template
		items      map[string]coursework.WorkItem
		retakes    map[string]coursework.RetakeRequest
		ledger     map[ledgerKey]coursework.LedgerEntry
	}

	ledgerKey struct {
		sourceID   string
		sourceType coursework.Kind
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{tables: tables{
		users:      make(map[string]user.User),
		groups:     make(map[string]group.Group),
		events:     make(map[string]calendar.Event),
		exceptions: make(map[string]map[string]calendar.Exception),
		lectures:   make(map[string]calendar.Lecture),
		templates:  make(map[string]coursework.Template),
		items:      make(map[string]coursework.WorkItem),
		retakes:    make(map[string]coursework.RetakeRequest),
		ledger:     make(map[ledgerKey]coursework.LedgerEntry),
	}}
}

// WithinTx runs fn alone against the database and restores every table when it fails.
func (db *DB) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.RLock()
	snap := db.tables.clone()
	db.mu.RUnlock()

	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.tables = snap
		db.mu.Unlock()
		return err
	}
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := Open()
	db.mu.Lock()
	db.tables = fresh.tables
	db.mu.Unlock()
}

func (t tables) clone() tables {
	c := tables{
		users:      make(map[string]user.User, len(t.users)),
		groups:     make(map[string]group.Group, len(t.groups)),
		events:     make(map[string]calendar.Event, len(t.events)),
		exceptions: make(map[string]map[string]calendar.Exception, len(t.exceptions)),
		lectures:   make(map[string]calendar.Lecture, len(t.lectures)),
		templates:  make(map[string]coursework.Template, len(t.templates)),
		items:      make(map[string]coursework.WorkItem, len(t.items)),
		retakes:    make(map[string]coursework.RetakeRequest, len(t.retakes)),
		ledger:     make(map[ledgerKey]coursework.LedgerEntry, len(t.ledger)),
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.groups {
		c.groups[k] = v
	}
	for k, v := range t.events {
		c.events[k] = v
	}
	for k, dates := range t.exceptions {
		cd := make(map[string]calendar.Exception, len(dates))
		for d, exc := range dates {
			cd[d] = exc
		}
		c.exceptions[k] = cd
	}
	for k, v := range t.lectures {
		c.lectures[k] = v
	}
	for k, v := range t.templates {
		c.templates[k] = v
	}
	for k, v := range t.items {
		c.items[k] = v
	}
	for k, v := range t.retakes {
		c.retakes[k] = v
	}
	for k, v := range t.ledger {
		c.ledger[k] = v
	}
	return c
}
