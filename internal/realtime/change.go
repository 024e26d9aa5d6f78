// Package realtime fans table change notifications out to subscribers.
//
// Changes originate from Postgres triggers (NOTIFY), optionally hop through
// Redis so every API instance sees them, land in a Hub and are streamed to
// browsers as Server-Sent Events.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change is one row-level change as emitted by the change_feed trigger.
type Change struct {
	ChangeID string          `json:"changeId"`
	Table    string          `json:"table"`
	Op       Op              `json:"op"`
	ID       string          `json:"id"`
	At       time.Time       `json:"at"`
	Record   json.RawMessage `json:"record,omitempty"`
}

// Tables with a change feed trigger.
var Tables = []string{"users", "products", "services", "bookings", "orders", "activity_logs", "settings"}

func KnownTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrInvalidChange = errors.New("invalid change payload")
	ErrHubClosed     = errors.New("hub closed")
)

func ParseChange(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if c.ChangeID == "" || c.Table == "" {
		return Change{}, ErrInvalidChange
	}
	switch c.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Change{}, fmt.Errorf("%w: op %q", ErrInvalidChange, c.Op)
	}
	return c, nil
}

// Sink receives changes from a source (Postgres listener, Redis subscriber).
type Sink interface {
	Publish(c Change)
}

type SinkFunc func(Change)

func (f SinkFunc) Publish(c Change) { f(c) }
