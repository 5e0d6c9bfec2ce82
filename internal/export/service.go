package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// DataStore is the slice of the application the exporter needs.
type DataStore interface {
	GetProposalInfo(ctx context.Context, id string) (ProposalInfo, error)
	// GetDraftMarkdown returns the generated draft's markdown, or
	// ErrContentUnavailable when no draft artifact exists.
	GetDraftMarkdown(ctx context.Context, id string) (string, error)
}

// ProposalInfo holds the proposal metadata printed in the export header.
type ProposalInfo struct {
	ID          string
	Code        string
	Title       string
	Description string
	UpdatedAt   time.Time
}

// Service renders proposal drafts to PDF or DOCX.
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetProposalInfo(ctx, req.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}

	markdown, err := s.store.GetDraftMarkdown(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrContentUnavailable
	}

	title := info.Title
	if title == "" {
		title = info.Code
	}

	html, err := RenderProposalHTML(TemplateData{
		Title:       title,
		Code:        info.Code,
		Description: info.Description,
		ContentHTML: template.HTML(MarkdownToHTML(markdown)),
		GeneratedAt: info.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
