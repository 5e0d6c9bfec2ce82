package store

import (
	"encoding/json"
	"time"
)

// Proposal statuses, in lifecycle order.
const (
	StatusDraft      = "draft"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusCompleted  = "completed"
	StatusArchived   = "archived"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusInProgress, StatusReview, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

type Proposal struct {
	ID          string
	Code        string
	Title       string
	Description string
	Status      string
	CurrentStep int
	ConceptText string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UploadedDocument is a file reference attached to a proposal. Kind is one
// of rfp, reference, concept, draft.
type UploadedDocument struct {
	ID          string
	ProposalID  string
	Kind        string
	Filename    string
	ObjectKey   string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

const (
	DocumentKindRFP       = "rfp"
	DocumentKindReference = "reference"
	DocumentKindConcept   = "concept"
	DocumentKindDraft     = "draft"
)

func ValidDocumentKind(kind string) bool {
	switch kind {
	case DocumentKindRFP, DocumentKindReference, DocumentKindConcept, DocumentKindDraft:
		return true
	}
	return false
}

// SectionSelection persists which sections and per-section comments feed
// the next concept-document generation.
type SectionSelection struct {
	ProposalID string
	Sections   []string
	Comments   map[string]string
	UpdatedAt  time.Time
}

// Artifact is one durable analysis result row.
type Artifact struct {
	ProposalID string
	Kind       string
	Data       json.RawMessage
	UpdatedAt  time.Time
}
