package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusPending          DocumentStatus = "pending"
	StatusProcessing       DocumentStatus = "processing"
	StatusDigitalSignature DocumentStatus = "digitalSignature"
	StatusCompleted        DocumentStatus = "completed"
	StatusRejected         DocumentStatus = "rejected"
)

// DocumentStatuses lists the pipeline in workflow order, terminal states last.
var DocumentStatuses = []DocumentStatus{
	StatusPending,
	StatusProcessing,
	StatusDigitalSignature,
	StatusCompleted,
	StatusRejected,
}

func (s DocumentStatus) Valid() bool {
	for _, known := range DocumentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type NotarizationService struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name,omitempty"`
	FieldID     string  `json:"fieldId,omitempty"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
}

type NotarizationField struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type RequesterInfo struct {
	CitizenID   string `json:"citizenId,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
}

type File struct {
	Filename    string    `json:"filename"`
	StorageURL  string    `json:"storageUrl"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Document is a notarization request moving through the status pipeline.
type Document struct {
	ID                  string              `json:"id"`
	NotarizationService NotarizationService `json:"notarizationService"`
	NotarizationField   NotarizationField   `json:"notarizationField"`
	RequesterInfo       RequesterInfo       `json:"requesterInfo"`
	UserID              string              `json:"userId"`
	UserEmail           string              `json:"userEmail,omitempty"`
	SessionID           string              `json:"sessionId,omitempty"`
	Files               []File              `json:"files"`
	Status              DocumentStatus      `json:"status"`
	Feedback            string              `json:"feedback,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// NotificationEmail picks the address used for status emails.
func (d *Document) NotificationEmail() string {
	if email := strings.TrimSpace(d.RequesterInfo.Email); email != "" {
		return email
	}
	return d.UserEmail
}

// StatusTracking is one append-only history row.
type StatusTracking struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"documentId"`
	Status     DocumentStatus `json:"status"`
	Action     Action         `json:"action,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	ActorRole  Role           `json:"actorRole,omitempty"`
	Feedback   string         `json:"feedback,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// DocumentQuery drives the paginated listing.
type DocumentQuery struct {
	Status    DocumentStatus
	SortBy    string
	Direction SortDirection
	Limit     int
	Page      int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	// MaxPage keeps (page-1)*limit well inside the OFFSET range.
	MaxPage = 1_000_000
)

var documentSortFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"status":    true,
}

// ParseDocumentQuery normalizes the sortBy=field:dir, limit and page inputs.
func ParseDocumentQuery(sortBy string, limit, page int, status string) (DocumentQuery, error) {
	q := DocumentQuery{
		SortBy:    "createdAt",
		Direction: SortDesc,
		Limit:     limit,
		Page:      page,
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		return DocumentQuery{}, Errorf(ErrInvalidInput, "parse document query", "page %d exceeds %d", q.Page, MaxPage)
	}

	if sortBy = strings.TrimSpace(sortBy); sortBy != "" {
		field, dir, _ := strings.Cut(sortBy, ":")
		if !documentSortFields[field] {
			return DocumentQuery{}, Errorf(ErrInvalidInput, "parse document query", "unsupported sort field %q", field)
		}
		q.SortBy = field
		switch SortDirection(strings.ToLower(dir)) {
		case "", SortAsc:
			q.Direction = SortAsc
		case SortDesc:
			q.Direction = SortDesc
		default:
			return DocumentQuery{}, Errorf(ErrInvalidInput, "parse document query", "unsupported sort direction %q", dir)
		}
	}

	if status = strings.TrimSpace(status); status != "" {
		q.Status = DocumentStatus(status)
		if !q.Status.Valid() {
			return DocumentQuery{}, Errorf(ErrInvalidInput, "parse document query", "unknown status %q", status)
		}
	}
	return q, nil
}

func (q DocumentQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type DocumentPage struct {
	Results      []Document `json:"results"`
	Page         int        `json:"page"`
	Limit        int        `json:"limit"`
	TotalPages   int        `json:"totalPages"`
	TotalResults int        `json:"totalResults"`
}

func NewDocumentPage(results []Document, q DocumentQuery, total int) DocumentPage {
	if results == nil {
		results = []Document{}
	}
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return DocumentPage{
		Results:      results,
		Page:         q.Page,
		Limit:        q.Limit,
		TotalPages:   pages,
		TotalResults: total,
	}
}

// NewDocument is the metadata accompanying uploaded files.
type NewDocument struct {
	NotarizationService NotarizationService
	NotarizationField   NotarizationField
	RequesterInfo       RequesterInfo
}

// Report is a rendered export ready to be streamed.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}
