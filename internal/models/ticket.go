package models

import "time"

// Ticket statuses.
const (
	TicketOpen   = "open"
	TicketClosed = "closed"
)

// Ticket is a helpdesk request. Tickets are private to their requester;
// only the requester and admins may read or reply to one.
type Ticket struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Subject     string    `gorm:"size:200;not null" json:"subject"`
	Body        string    `gorm:"type:text" json:"body"`
	Status      string    `gorm:"size:16;index;not null;default:open" json:"status"`
	RequesterID uint      `gorm:"index;not null" json:"requester_id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Replies []Reply `gorm:"constraint:OnDelete:CASCADE" json:"replies,omitempty"`
}

// Reply is a message on a ticket thread.
type Reply struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TicketID  uint      `gorm:"index;not null" json:"ticket_id"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
