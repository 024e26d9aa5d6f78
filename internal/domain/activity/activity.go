package activity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionStatusChange Action = "status_change"
	ActionStockAdjust  Action = "stock_adjust"
	ActionUpload       Action = "upload"
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
)

// Entity names match the table a change was made to.
const (
	EntityUser     = "users"
	EntityProduct  = "products"
	EntityService  = "services"
	EntityBooking  = "bookings"
	EntityOrder    = "orders"
	EntitySettings = "settings"
)

type Entry struct {
	ID         string          `json:"id"`
	ActorID    *string         `json:"actorId,omitempty"`
	ActorEmail string          `json:"actorEmail,omitempty"`
	Action     Action          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entityId,omitempty"`
	Details    json.RawMessage `json:"details"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// New fills in id, timestamp and an empty details object when missing.
func New(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.Details) == 0 {
		e.Details = json.RawMessage(`{}`)
	}
	return e
}
