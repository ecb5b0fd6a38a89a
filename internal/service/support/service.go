package support

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

const (
	subjectMinLen = 5
	subjectMaxLen = 160
	messageMinLen = 10
	messageMaxLen = 5000

	listDefaultLimit = 20
	listMaxLimit     = 50
)

// Repository persists support tickets.
type Repository interface {
	// CountTicketsSince counts the user's tickets created at or after t.
	CountTicketsSince(ctx context.Context, userID string, t time.Time) (int, error)

	// LastTicketAt returns the user's newest ticket creation time, or
	// nil when they have none.
	LastTicketAt(ctx context.Context, userID string) (*time.Time, error)

	// CreateTicket inserts an open ticket and its audit entry.
	CreateTicket(ctx context.Context, userID string, category domain.TicketCategory, subject, message string) (*domain.SupportTicket, error)

	// TicketsByUser lists the user's tickets, newest first.
	TicketsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.SupportTicket, error)

	// EntitlementPlan returns the user's stored plan code, FREE when no
	// row exists.
	EntitlementPlan(ctx context.Context, userID string) (domain.PlanCode, error)
}

// Config carries the support settings.
type Config struct {
	ContactEmail      string
	TicketsEnabled    bool
	MaxTicketsPerDay  int
	MinTicketInterval time.Duration
	AppName           string
}

// Service answers support requests.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService creates a support service.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.AppName == "" {
		cfg.AppName = "Rivio"
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// ContactLink is a prefilled mailto for users who prefer email.
type ContactLink struct {
	ToEmail         string `json:"to_email"`
	SubjectTemplate string `json:"subject_template"`
	BodyTemplate    string `json:"body_template"`
	MailtoURL       string `json:"mailto_url"`
}

// Contact builds the user's support mail link, tagging their plan so
// replies can be prioritized.
func (s *Service) Contact(ctx context.Context, userID string) (*ContactLink, error) {
	plan, err := s.repo.EntitlementPlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load plan for contact link: %w", err)
	}

	subject := fmt.Sprintf("%s support | user:%s | plan:%s", s.cfg.AppName, userID, plan)
	body := strings.Join([]string{
		"Hi " + s.cfg.AppName + " team,",
		"",
		"I need help with:",
		"- Context:",
		"- Steps to reproduce:",
		"- Expected result:",
		"- Actual result:",
		"",
		"Thanks.",
	}, "\n")
	mailto := fmt.Sprintf(
		"mailto:%s?subject=%s&body=%s",
		s.cfg.ContactEmail,
		url.QueryEscape(subject),
		url.QueryEscape(body),
	)
	return &ContactLink{
		ToEmail:         s.cfg.ContactEmail,
		SubjectTemplate: subject,
		BodyTemplate:    body,
		MailtoURL:       mailto,
	}, nil
}

// CreateInput is a new ticket request.
type CreateInput struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// CreateTicket opens a ticket, throttled per user: a daily cap plus a
// minimum gap between consecutive tickets.
func (s *Service) CreateTicket(ctx context.Context, userID string, in CreateInput) (*domain.SupportTicket, error) {
	if !s.cfg.TicketsEnabled {
		return nil, ErrDisabled
	}

	category := domain.TicketCategory(strings.ToLower(strings.TrimSpace(in.Category)))
	if category == "" {
		category = domain.TicketGeneral
	}
	subject := strings.TrimSpace(in.Subject)
	message := strings.TrimSpace(in.Message)
	switch {
	case !category.Valid():
		return nil, fmt.Errorf("%w: unknown category", ErrInvalidTicket)
	case len(subject) < subjectMinLen || len(subject) > subjectMaxLen:
		return nil, fmt.Errorf("%w: subject length", ErrInvalidTicket)
	case len(message) < messageMinLen || len(message) > messageMaxLen:
		return nil, fmt.Errorf("%w: message length", ErrInvalidTicket)
	}

	now := s.now().UTC()
	recent, err := s.repo.CountTicketsSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count recent tickets: %w", err)
	}
	if recent >= s.cfg.MaxTicketsPerDay {
		return nil, ErrDailyLimit
	}

	last, err := s.repo.LastTicketAt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load last ticket time: %w", err)
	}
	if last != nil && now.Before(last.Add(s.cfg.MinTicketInterval)) {
		return nil, ErrTooSoon
	}

	ticket, err := s.repo.CreateTicket(ctx, userID, category, subject, message)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

// TicketList is a paginated ticket page.
type TicketList struct {
	Rows       []domain.SupportTicket `json:"rows"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
	NextOffset *int                   `json:"next_offset,omitempty"`
}

// MyTickets lists the caller's tickets, newest first.
func (s *Service) MyTickets(ctx context.Context, userID string, limit, offset int) (*TicketList, error) {
	if limit <= 0 {
		limit = listDefaultLimit
	}
	if limit > listMaxLimit {
		limit = listMaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.repo.TicketsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	out := &TicketList{Rows: rows, Limit: limit, Offset: offset}
	if len(rows) == limit {
		next := offset + limit
		out.NextOffset = &next
	}
	return out, nil
}
