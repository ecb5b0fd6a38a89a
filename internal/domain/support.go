package domain

import (
	"encoding/json"
	"time"
)

// TicketCategory routes a support ticket.
type TicketCategory string

const (
	TicketGeneral TicketCategory = "general"
	TicketBilling TicketCategory = "billing"
	TicketPremium TicketCategory = "premium"
	TicketBug     TicketCategory = "bug"
	TicketAbuse   TicketCategory = "abuse"
)

// Valid reports whether c is a known ticket category.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketGeneral, TicketBilling, TicketPremium, TicketBug, TicketAbuse:
		return true
	}
	return false
}

// TicketStatus is the support workflow state.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
	TicketSpam       TicketStatus = "spam"
)

// SupportTicket is an in-app help request.
type SupportTicket struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Category  TicketCategory `json:"category" db:"category"`
	Subject   string         `json:"subject" db:"subject"`
	Message   string         `json:"message" db:"message"`
	Status    TicketStatus   `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// AuditEntry is one append-only audit record, written inside the same
// transaction as the action it describes.
type AuditEntry struct {
	ID          string          `json:"id" db:"id"`
	ActorUserID *string         `json:"actor_user_id,omitempty" db:"actor_user_id"`
	EntityType  string          `json:"entity_type" db:"entity_type"`
	EntityID    string          `json:"entity_id" db:"entity_id"`
	Action      string          `json:"action" db:"action"`
	Data        json.RawMessage `json:"data" db:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
