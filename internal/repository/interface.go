package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stubot/internal/model"
)

// DefaultPageSize is used when a caller asks for a non-positive page size.
const DefaultPageSize = 10

var ErrNotFound = errors.New("exchange not found")

// PersistenceError reports a failed write or read against the log store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExchangeRepository defines the interface for conversation log data access
type ExchangeRepository interface {
	// Append stores a new exchange and returns its id. CreatedAt is assigned here.
	Append(ctx context.Context, ex *model.Exchange) (uuid.UUID, error)

	// GetByID retrieves one exchange
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exchange, error)

	// Page returns one page of exchanges, most recent first
	Page(ctx context.Context, page, pageSize int) (*Page, error)

	// Classify counts answered and unanswered exchanges
	Classify(ctx context.Context) (*Classification, error)

	// DeleteByID removes an exchange and the audio artifacts it references
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// ReferencedAudio returns every artifact filename some exchange references
	ReferencedAudio(ctx context.Context) (map[string]struct{}, error)
}

// Page is one page of the conversation log.
type Page struct {
	Items      []model.Exchange `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"per_page"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
	HasPrev    bool             `json:"has_prev"`
	HasNext    bool             `json:"has_next"`
	// StartIndex and EndIndex are the 1-based record range of this page, both 0
	// for an empty log.
	StartIndex int `json:"start_record"`
	EndIndex   int `json:"end_record"`
}

// NewPage computes pagination for totalCount records. The requested page is
// clamped into [1, TotalPages], and TotalPages is at least 1.
func NewPage(page, pageSize, totalCount int) *Page {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	totalPages := (totalCount + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	p := &Page{
		Items:      []model.Exchange{},
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
	if totalCount > 0 {
		p.StartIndex = (page-1)*pageSize + 1
		p.EndIndex = min(page*pageSize, totalCount)
	}
	return p
}

// Offset is the number of records preceding this page.
func (p *Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Classification holds the dashboard counters. Answered + Unanswered == Total.
type Classification struct {
	Total      int `json:"total_questions"`
	Answered   int `json:"answered_questions"`
	Unanswered int `json:"unanswered_questions"`
}
