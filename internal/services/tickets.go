package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/models"
	appErrors "github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/validator"
)

// TicketService owns the helpdesk. Tickets are private: only the requester
// and admins may read or reply. The open-ticket queue is the hot read for the
// admin dashboard and is cached.
type TicketService struct {
	db    *database.Facade
	store cache.Store
	inv   *cache.Invalidator
	ttl   time.Duration
}

// NewTicketService wires the helpdesk service.
func NewTicketService(db *database.Facade, store cache.Store, inv *cache.Invalidator, ttl time.Duration) (*TicketService, error) {
	if db == nil {
		return nil, errors.New("tickets: database facade is required")
	}
	if store == nil {
		return nil, errors.New("tickets: cache store is required")
	}
	return &TicketService{db: db, store: store, inv: inv, ttl: ttl}, nil
}

// TicketInput is the payload for opening a ticket.
type TicketInput struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required"`
}

// ReplyInput is the payload for replying on a ticket thread.
type ReplyInput struct {
	Body string `json:"body" validate:"required"`
}

// Open returns the open-ticket queue, newest first, cached under a fixed key.
func (s *TicketService) Open(ctx context.Context) ([]models.Ticket, error) {
	return cache.Remember(ctx, s.store, KeyOpenTickets, s.ttl, func(ctx context.Context) ([]models.Ticket, error) {
		tickets := []models.Ticket{}
		err := s.db.DB().WithContext(ctx).
			Where("status = ?", models.TicketOpen).
			Order("created_at DESC").
			Find(&tickets).Error
		if err != nil {
			return nil, appErrors.ErrQuery.WithInternal(err)
		}
		return tickets, nil
	})
}

// ListForUser returns the caller's own tickets. Per-user listings are not
// cached; they are neither hot nor shared.
func (s *TicketService) ListForUser(ctx context.Context, identity auth.Identity) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := s.db.DB().WithContext(ctx).
		Where("requester_id = ?", identity.UserID).
		Order("created_at DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, appErrors.ErrQuery.WithInternal(err)
	}
	return tickets, nil
}

// Get returns one ticket thread with replies, cached per id. Authorization
// runs before the cache so a cached thread never leaks to a non-owner.
func (s *TicketService) Get(ctx context.Context, identity auth.Identity, id uint) (models.Ticket, error) {
	if _, err := s.authorizeTicket(ctx, identity, id); err != nil {
		return models.Ticket{}, err
	}

	return cache.Remember(ctx, s.store, TicketKey(id), s.ttl, func(ctx context.Context) (models.Ticket, error) {
		var ticket models.Ticket
		err := s.db.DB().WithContext(ctx).Preload("Replies").Take(&ticket, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Ticket{}, appErrors.ErrNotFound
		}
		if err != nil {
			return models.Ticket{}, appErrors.ErrQuery.WithInternal(err)
		}
		return ticket, nil
	})
}

// Create opens a new ticket for the caller.
func (s *TicketService) Create(ctx context.Context, identity auth.Identity, input TicketInput) (models.Ticket, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Ticket{}, appErrors.NewValidation(err.Error())
	}

	ticket := models.Ticket{
		Subject:     input.Subject,
		Body:        input.Body,
		Status:      models.TicketOpen,
		RequesterID: identity.UserID,
	}
	if err := s.db.DB().WithContext(ctx).Create(&ticket).Error; err != nil {
		return models.Ticket{}, appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "ticket", ticket.ID)
	return ticket, nil
}

// Reply appends a message to a ticket thread and drops its cached copy.
func (s *TicketService) Reply(ctx context.Context, identity auth.Identity, ticketID uint, input ReplyInput) (models.Reply, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Reply{}, appErrors.NewValidation(err.Error())
	}

	if _, err := s.authorizeTicket(ctx, identity, ticketID); err != nil {
		return models.Reply{}, err
	}

	reply := models.Reply{
		TicketID: ticketID,
		AuthorID: identity.UserID,
		Body:     input.Body,
	}
	if err := s.db.DB().WithContext(ctx).Create(&reply).Error; err != nil {
		return models.Reply{}, appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "reply", ticketID)
	return reply, nil
}

// Close marks a ticket closed.
func (s *TicketService) Close(ctx context.Context, identity auth.Identity, id uint) error {
	if _, err := s.authorizeTicket(ctx, identity, id); err != nil {
		return err
	}

	res, err := s.db.Execute(ctx,
		"UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?",
		models.TicketClosed, time.Now(), id)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrNotFound
	}

	s.inv.Invalidate(ctx, "ticket", id)
	return nil
}

// authorizeTicket checks the caller may access a ticket. Non-admins receive
// the same generic denial for a missing ticket and for someone else's ticket,
// so the response does not reveal whether the id exists.
func (s *TicketService) authorizeTicket(ctx context.Context, identity auth.Identity, id uint) (models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.DB().WithContext(ctx).Take(&ticket, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if identity.IsAdmin() {
			return models.Ticket{}, appErrors.ErrNotFound
		}
		return models.Ticket{}, appErrors.ErrAccessDenied
	}
	if err != nil {
		return models.Ticket{}, appErrors.ErrQuery.WithInternal(err)
	}

	if !identity.IsAdmin() && ticket.RequesterID != identity.UserID {
		return models.Ticket{}, appErrors.ErrAccessDenied
	}
	return ticket, nil
}
