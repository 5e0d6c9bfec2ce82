package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"grantflow/api/internal/workflow"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, code, title, description, status, current_step, concept_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Code, p.Title, p.Description, p.Status, p.CurrentStep, p.ConceptText)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, id string) (Proposal, error) {
	var p Proposal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, title, description, status, current_step, concept_text, created_at, updated_at
		FROM proposals
		WHERE id=$1
	`, id).Scan(&p.ID, &p.Code, &p.Title, &p.Description, &p.Status, &p.CurrentStep, &p.ConceptText, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Proposal{}, err
	}
	return p, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, title, description, status, current_step, concept_text, created_at, updated_at
		FROM proposals
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

func scanProposals(rows *sql.Rows) ([]Proposal, error) {
	items := make([]Proposal, 0)
	for rows.Next() {
		var p Proposal
		if err := rows.Scan(&p.ID, &p.Code, &p.Title, &p.Description, &p.Status, &p.CurrentStep, &p.ConceptText, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

// UpdateProposalFields patches the mutable proposal columns. Nil pointers
// leave the column untouched.
func (s *PostgresStore) UpdateProposalFields(ctx context.Context, id string, title, description, status, conceptText *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proposals SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			status = COALESCE($4, status),
			concept_text = COALESCE($5, concept_text),
			updated_at = NOW()
		WHERE id=$1
	`, id, title, description, status, conceptText)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCurrentStep(ctx context.Context, id string, step int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE proposals SET current_step=$2, updated_at=NOW() WHERE id=$1`, id, step)
	if err != nil {
		return fmt.Errorf("update current step: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProposal(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc UploadedDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposal_documents (id, proposal_id, kind, filename, object_key, size, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.ProposalID, doc.Kind, doc.Filename, doc.ObjectKey, doc.Size, doc.ContentType)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, proposalID, filename string) (UploadedDocument, error) {
	var doc UploadedDocument
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, kind, filename, object_key, size, content_type, uploaded_at
		FROM proposal_documents
		WHERE proposal_id=$1 AND filename=$2
	`, proposalID, filename).Scan(&doc.ID, &doc.ProposalID, &doc.Kind, &doc.Filename, &doc.ObjectKey, &doc.Size, &doc.ContentType, &doc.UploadedAt)
	if err != nil {
		return UploadedDocument{}, err
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, proposalID string) ([]UploadedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, kind, filename, object_key, size, content_type, uploaded_at
		FROM proposal_documents
		WHERE proposal_id=$1
		ORDER BY uploaded_at
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]UploadedDocument, 0)
	for rows.Next() {
		var doc UploadedDocument
		if err := rows.Scan(&doc.ID, &doc.ProposalID, &doc.Kind, &doc.Filename, &doc.ObjectKey, &doc.Size, &doc.ContentType, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, proposalID, filename string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proposal_documents WHERE proposal_id=$1 AND filename=$2`, proposalID, filename)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpsertSectionSelection(ctx context.Context, sel SectionSelection) error {
	sections, err := json.Marshal(sel.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	comments, err := json.Marshal(sel.Comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO section_selections (proposal_id, sections, comments)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id) DO UPDATE SET sections=EXCLUDED.sections, comments=EXCLUDED.comments, updated_at=NOW()
	`, sel.ProposalID, sections, comments)
	if err != nil {
		return fmt.Errorf("upsert section selection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSectionSelection(ctx context.Context, proposalID string) (SectionSelection, error) {
	var sel SectionSelection
	var sections, comments []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT proposal_id, sections, comments, updated_at
		FROM section_selections
		WHERE proposal_id=$1
	`, proposalID).Scan(&sel.ProposalID, &sections, &comments, &sel.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SectionSelection{ProposalID: proposalID}, nil
	}
	if err != nil {
		return SectionSelection{}, fmt.Errorf("get section selection: %w", err)
	}
	if err := json.Unmarshal(sections, &sel.Sections); err != nil {
		return SectionSelection{}, fmt.Errorf("unmarshal sections: %w", err)
	}
	if err := json.Unmarshal(comments, &sel.Comments); err != nil {
		return SectionSelection{}, fmt.Errorf("unmarshal comments: %w", err)
	}
	return sel, nil
}

// SaveArtifact upserts one durable artifact row. Part of the persistence
// adapter's Remote interface.
func (s *PostgresStore) SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposal_artifacts (proposal_id, kind, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id, kind) DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()
	`, proposalID, string(kind), data)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) LoadArtifacts(ctx context.Context, proposalID string) (map[workflow.Kind][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, data FROM proposal_artifacts WHERE proposal_id=$1
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[workflow.Kind][]byte)
	for rows.Next() {
		var kind string
		var data []byte
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out[workflow.Kind(kind)] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM proposal_artifacts WHERE proposal_id=$1 AND kind = ANY($2)
	`, proposalID, names)
	if err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	return nil
}
