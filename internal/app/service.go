package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"grantflow/api/internal/analysis"
	"grantflow/api/internal/config"
	"grantflow/api/internal/draftrepo"
	"grantflow/api/internal/export"
	"grantflow/api/internal/persist"
	"grantflow/api/internal/poll"
	"grantflow/api/internal/search"
	"grantflow/api/internal/store"
	"grantflow/api/internal/util"
	"grantflow/api/internal/workflow"
)

type CreateProposalInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type UpdateProposalInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	ConceptText *string `json:"conceptText"`
}

type SectionSelectionInput struct {
	Sections []string          `json:"sections"`
	Comments map[string]string `json:"comments"`
}

type StartAnalysisInput struct {
	Kind  string `json:"kind"`
	Force bool   `json:"force"`
}

// DocumentView is the API shape of an uploaded file reference.
type DocumentView struct {
	Kind        string    `json:"kind"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ProposalView is the full API shape of a proposal, wizard state included.
type ProposalView struct {
	ID              string            `json:"id"`
	Code            string            `json:"code"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Status          string            `json:"status"`
	CurrentStep     int               `json:"currentStep"`
	CompletedSteps  []int             `json:"completedSteps"`
	PendingChanges  bool              `json:"pendingChanges"`
	PendingStep     int               `json:"pendingStep,omitempty"`
	ConceptText     string            `json:"conceptText"`
	Sections        []string          `json:"sections"`
	SectionComments map[string]string `json:"sectionComments,omitempty"`
	Documents       []DocumentView    `json:"documents"`
	ArtifactKinds   []string          `json:"artifactKinds"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// ProposalSummary is the dashboard row shape; it reads from the durable
// store only and never hydrates wizard state.
type ProposalSummary struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CurrentStep int       `json:"currentStep"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AnalysisState reports one artifact slot: absent, processing, completed
// or failed. Absence is distinct from in-flight.
type AnalysisState struct {
	Kind   string          `json:"kind"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	analysisAbsent     = "absent"
	analysisProcessing = "processing"
	analysisCompleted  = "completed"
	analysisFailed     = "failed"
)

type dataStore interface {
	CreateProposal(context.Context, store.Proposal) error
	GetProposal(context.Context, string) (store.Proposal, error)
	ListProposals(context.Context) ([]store.Proposal, error)
	UpdateProposalFields(ctx context.Context, id string, title, description, status, conceptText *string) error
	UpdateCurrentStep(ctx context.Context, id string, step int) error
	DeleteProposal(context.Context, string) error
	InsertDocument(context.Context, store.UploadedDocument) error
	GetDocument(ctx context.Context, proposalID, filename string) (store.UploadedDocument, error)
	ListDocuments(context.Context, string) ([]store.UploadedDocument, error)
	DeleteDocument(ctx context.Context, proposalID, filename string) error
	UpsertSectionSelection(context.Context, store.SectionSelection) error
	GetSectionSelection(context.Context, string) (store.SectionSelection, error)
	Ping(ctx context.Context) error
}

type fileStore interface {
	Upload(ctx context.Context, proposalID, kind, filename string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, objectKey string) error
	DeleteAll(ctx context.Context, proposalID string) error
}

type analysisBackend interface {
	Start(ctx context.Context, proposalID string, kind workflow.Kind, force bool) (poll.Result, error)
	Fetch(proposalID string, kind workflow.Kind) poll.FetchFunc
}

type draftStore interface {
	CommitDocument(proposalID string, kind workflow.Kind, markdown, author string) (draftrepo.Version, error)
	History(proposalID string, kind workflow.Kind, limit int) ([]draftrepo.Version, error)
	DocumentAt(proposalID string, kind workflow.Kind, hash string) (string, error)
	Remove(proposalID string) error
}

type artifactPersister interface {
	workflow.Persister
	Load(ctx context.Context, proposalID string) map[workflow.Kind][]byte
	ClearAll(ctx context.Context, proposalID string)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	persist  artifactPersister
	files    fileStore
	analysis analysisBackend
	drafts   draftStore
	search   *search.Service
	registry *poll.Registry
	cache    pinger
	exporter *export.Service

	ctrlMu      sync.Mutex
	controllers map[string]*workflow.Controller

	jobMu   sync.Mutex
	jobErrs map[string]string
}

func New(cfg config.Config, dataStore *store.PostgresStore, adapter *persist.Adapter, files fileStore, client *analysis.Client, drafts *draftrepo.Service, searchSvc *search.Service, cache pinger) *Service {
	s := &Service{
		cfg:         cfg,
		store:       dataStore,
		persist:     adapter,
		files:       files,
		analysis:    client,
		drafts:      drafts,
		search:      searchSvc,
		registry:    poll.NewRegistry(),
		cache:       cache,
		controllers: make(map[string]*workflow.Controller),
		jobErrs:     make(map[string]string),
	}
	s.exporter = export.NewService(s)
	return s
}

// Registry exposes the poll registry so shutdown can cancel in-flight jobs.
func (s *Service) Registry() *poll.Registry {
	return s.registry
}

// Bootstrap rebuilds the search index from the durable store.
func (s *Service) Bootstrap(ctx context.Context) error {
	proposals, err := s.store.ListProposals(ctx)
	if err != nil {
		return err
	}
	records := make([]search.Record, 0, len(proposals))
	for _, p := range proposals {
		records = append(records, searchRecord(p))
	}
	s.search.ReindexAll(records)
	return nil
}

func searchRecord(p store.Proposal) search.Record {
	return search.Record{
		ID:          p.ID,
		Code:        p.Code,
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
	}
}

// controller returns the wizard controller for a proposal, hydrating it
// from persistence on first access. The proposal row is fetched first so a
// missing id fails before any controller is created.
func (s *Service) controller(ctx context.Context, proposalID string) (*workflow.Controller, store.Proposal, error) {
	p, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, store.Proposal{}, err
	}

	s.ctrlMu.Lock()
	ctrl, ok := s.controllers[proposalID]
	s.ctrlMu.Unlock()
	if ok {
		return ctrl, p, nil
	}

	artifacts := s.persist.Load(ctx, proposalID)
	inputs, err := s.loadInputs(ctx, p)
	if err != nil {
		return nil, store.Proposal{}, err
	}

	ctrl = workflow.NewController(proposalID, s.persist)
	ctrl.Hydrate(inputs, p.CurrentStep, artifacts)

	s.ctrlMu.Lock()
	if existing, ok := s.controllers[proposalID]; ok {
		ctrl = existing
	} else {
		s.controllers[proposalID] = ctrl
	}
	s.ctrlMu.Unlock()
	return ctrl, p, nil
}

func (s *Service) loadInputs(ctx context.Context, p store.Proposal) (workflow.Inputs, error) {
	docs, err := s.store.ListDocuments(ctx, p.ID)
	if err != nil {
		return workflow.Inputs{}, err
	}
	inputs := workflow.Inputs{ConceptText: p.ConceptText}
	for _, doc := range docs {
		switch doc.Kind {
		case store.DocumentKindRFP:
			inputs.HasRFPDocument = true
		case store.DocumentKindConcept:
			inputs.HasConceptFile = true
		case store.DocumentKindDraft:
			inputs.HasDraftFile = true
		}
	}
	sel, err := s.store.GetSectionSelection(ctx, p.ID)
	if err == nil {
		inputs.Sections = sel.Sections
		inputs.SectionComments = sel.Comments
	}
	return inputs, nil
}

func (s *Service) dropController(proposalID string) {
	s.ctrlMu.Lock()
	delete(s.controllers, proposalID)
	s.ctrlMu.Unlock()
}

func (s *Service) proposalView(ctx context.Context, p store.Proposal, ctrl *workflow.Controller) ProposalView {
	state := ctrl.State()
	docs, err := s.store.ListDocuments(ctx, p.ID)
	if err != nil {
		log.Printf("app: list documents for %s: %v", p.ID, err)
	}
	docViews := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		docViews = append(docViews, DocumentView{
			Kind:        doc.Kind,
			Filename:    doc.Filename,
			Size:        doc.Size,
			ContentType: doc.ContentType,
			UploadedAt:  doc.UploadedAt,
		})
	}
	kinds := make([]string, 0, len(state.Artifacts))
	for _, kind := range workflow.AllKinds() {
		if _, ok := state.Artifacts[kind]; ok {
			kinds = append(kinds, string(kind))
		}
	}
	sections := state.Inputs.Sections
	if sections == nil {
		sections = []string{}
	}
	return ProposalView{
		ID:              p.ID,
		Code:            p.Code,
		Title:           p.Title,
		Description:     p.Description,
		Status:          p.Status,
		CurrentStep:     state.CurrentStep,
		CompletedSteps:  state.CompletedSteps,
		PendingChanges:  state.PendingChanges,
		PendingStep:     state.PendingStep,
		ConceptText:     state.Inputs.ConceptText,
		Sections:        sections,
		SectionComments: state.Inputs.SectionComments,
		Documents:       docViews,
		ArtifactKinds:   kinds,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (s *Service) CreateProposal(ctx context.Context, input CreateProposalInput) (ProposalView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ProposalView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	now := time.Now().UTC()
	p := store.Proposal{
		ID:          util.NewID("prop"),
		Code:        util.NewCode(),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      store.StatusDraft,
		CurrentStep: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProposal(ctx, p); err != nil {
		return ProposalView{}, fmt.Errorf("create proposal: %w", err)
	}
	s.search.IndexProposal(searchRecord(p))

	ctrl, _, err := s.controller(ctx, p.ID)
	if err != nil {
		return ProposalView{}, err
	}
	return s.proposalView(ctx, p, ctrl), nil
}

func (s *Service) GetProposal(ctx context.Context, id string) (ProposalView, error) {
	ctrl, p, err := s.controller(ctx, id)
	if err != nil {
		return ProposalView{}, err
	}
	return s.proposalView(ctx, p, ctrl), nil
}

func (s *Service) ListProposals(ctx context.Context) ([]ProposalSummary, error) {
	proposals, err := s.store.ListProposals(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]ProposalSummary, 0, len(proposals))
	for _, p := range proposals {
		summaries = append(summaries, ProposalSummary{
			ID:          p.ID,
			Code:        p.Code,
			Title:       p.Title,
			Description: p.Description,
			Status:      p.Status,
			CurrentStep: p.CurrentStep,
			UpdatedAt:   p.UpdatedAt,
		})
	}
	return summaries, nil
}

func (s *Service) SearchProposals(ctx context.Context, text string, limit int) search.Response {
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit})
}

func (s *Service) UpdateProposal(ctx context.Context, id string, input UpdateProposalInput) (ProposalView, error) {
	ctrl, _, err := s.controller(ctx, id)
	if err != nil {
		return ProposalView{}, err
	}

	if input.Status != nil {
		if !store.ValidStatus(*input.Status) {
			return ProposalView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status", map[string]string{"status": *input.Status})
		}
		if *input.Status == store.StatusCompleted && !stepDone(ctrl.CompletedSteps(), workflow.StepCount) {
			return ProposalView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "proposal cannot be completed before the final step is done", nil)
		}
	}

	if err := s.store.UpdateProposalFields(ctx, id, input.Title, input.Description, input.Status, input.ConceptText); err != nil {
		return ProposalView{}, fmt.Errorf("update proposal: %w", err)
	}

	// A concept text edit is a step-1 input change and fires the full
	// cascade; metadata edits leave wizard state alone.
	if input.ConceptText != nil {
		inputs := ctrl.Inputs()
		ctrl.UpdateStepOneInputs(ctx, inputs.HasRFPDocument, inputs.HasConceptFile, *input.ConceptText)
	}

	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return ProposalView{}, err
	}
	s.search.IndexProposal(searchRecord(p))
	return s.proposalView(ctx, p, ctrl), nil
}

func (s *Service) DeleteProposal(ctx context.Context, id string) error {
	if _, err := s.store.GetProposal(ctx, id); err != nil {
		return err
	}

	s.registry.CancelPrefix(id + "/")
	if err := s.store.DeleteProposal(ctx, id); err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}

	// Cleanup beyond the database row is best effort.
	s.persist.ClearAll(ctx, id)
	if err := s.files.DeleteAll(ctx, id); err != nil {
		log.Printf("app: delete files for %s: %v", id, err)
	}
	if err := s.drafts.Remove(id); err != nil {
		log.Printf("app: remove draft repo for %s: %v", id, err)
	}
	s.search.DeleteProposal(id)
	s.dropController(id)
	return nil
}

func stepDone(completed []int, step int) bool {
	for _, n := range completed {
		if n == step {
			return true
		}
	}
	return false
}

// UploadDocument stores the file, records it, and fires the invalidation
// the document kind owns: rfp, reference and concept uploads are step-1
// input changes, a draft upload clears only step-4 feedback.
func (s *Service) UploadDocument(ctx context.Context, proposalID, kind, filename string, reader io.Reader, size int64, contentType string) (DocumentView, error) {
	if !store.ValidDocumentKind(kind) {
		return DocumentView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown document kind", map[string]string{"kind": kind})
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return DocumentView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
	}

	ctrl, _, err := s.controller(ctx, proposalID)
	if err != nil {
		return DocumentView{}, err
	}

	objectKey, err := s.files.Upload(ctx, proposalID, kind, filename, reader, size, contentType)
	if err != nil {
		return DocumentView{}, fmt.Errorf("upload document: %w", err)
	}

	doc := store.UploadedDocument{
		ID:          util.NewID("doc"),
		ProposalID:  proposalID,
		Kind:        kind,
		Filename:    filename,
		ObjectKey:   objectKey,
		Size:        size,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		if delErr := s.files.Delete(ctx, objectKey); delErr != nil {
			log.Printf("app: orphaned object %s: %v", objectKey, delErr)
		}
		return DocumentView{}, fmt.Errorf("record document: %w", err)
	}

	s.applyDocumentChange(ctx, ctrl, kind)
	return DocumentView{
		Kind:        doc.Kind,
		Filename:    doc.Filename,
		Size:        doc.Size,
		ContentType: doc.ContentType,
		UploadedAt:  doc.UploadedAt,
	}, nil
}

// DeleteDocument removes the stored object first; if that fails the row is
// kept so the list still matches reality and the caller can retry.
func (s *Service) DeleteDocument(ctx context.Context, proposalID, filename string) error {
	ctrl, _, err := s.controller(ctx, proposalID)
	if err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, proposalID, filename)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.ObjectKey); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, proposalID, filename); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.applyDocumentChange(ctx, ctrl, doc.Kind)
	return nil
}

// applyDocumentChange recomputes the input flags from the surviving
// documents and fires the owning step's invalidation.
func (s *Service) applyDocumentChange(ctx context.Context, ctrl *workflow.Controller, kind string) {
	docs, err := s.store.ListDocuments(ctx, ctrl.ProposalID())
	if err != nil {
		log.Printf("app: list documents for %s: %v", ctrl.ProposalID(), err)
		return
	}
	var hasRFP, hasConceptFile, hasDraft bool
	for _, doc := range docs {
		switch doc.Kind {
		case store.DocumentKindRFP:
			hasRFP = true
		case store.DocumentKindConcept:
			hasConceptFile = true
		case store.DocumentKindDraft:
			hasDraft = true
		}
	}
	switch kind {
	case store.DocumentKindDraft:
		ctrl.UpdateDraftUpload(ctx, hasDraft)
	default:
		ctrl.UpdateStepOneInputs(ctx, hasRFP, hasConceptFile, ctrl.Inputs().ConceptText)
	}
}

func (s *Service) GoToStep(ctx context.Context, proposalID string, step int) (ProposalView, error) {
	ctrl, p, err := s.controller(ctx, proposalID)
	if err != nil {
		return ProposalView{}, err
	}
	target, err := ctrl.GoToStep(step)
	if err != nil {
		return ProposalView{}, domainError(http.StatusUnprocessableEntity, "STEP_NOT_READY", "step requirements not met", map[string]int{"requested": step})
	}
	if err := s.store.UpdateCurrentStep(ctx, proposalID, target); err != nil {
		// Navigation already happened in memory; the durable copy catches
		// up on the next successful write.
		log.Printf("app: persist current step for %s: %v", proposalID, err)
	}
	p.CurrentStep = target
	return s.proposalView(ctx, p, ctrl), nil
}

func (s *Service) UpdateSectionSelection(ctx context.Context, proposalID string, input SectionSelectionInput) (ProposalView, error) {
	ctrl, p, err := s.controller(ctx, proposalID)
	if err != nil {
		return ProposalView{}, err
	}
	if err := s.store.UpsertSectionSelection(ctx, store.SectionSelection{
		ProposalID: proposalID,
		Sections:   input.Sections,
		Comments:   input.Comments,
	}); err != nil {
		return ProposalView{}, fmt.Errorf("save section selection: %w", err)
	}
	ctrl.UpdateSectionSelection(ctx, input.Sections, input.Comments)
	return s.proposalView(ctx, p, ctrl), nil
}

// SetFinalSelections stores the step-4 user selections as an artifact; no
// backend job is involved.
func (s *Service) SetFinalSelections(ctx context.Context, proposalID string, data json.RawMessage) (ProposalView, error) {
	ctrl, p, err := s.controller(ctx, proposalID)
	if err != nil {
		return ProposalView{}, err
	}
	if len(data) == 0 {
		return ProposalView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "selection payload is required", nil)
	}
	ctrl.SetArtifact(ctx, workflow.KindFinalSelections, data)
	return s.proposalView(ctx, p, ctrl), nil
}

// jobGroup maps an artifact kind to its poll key suffix. The three step-1
// analyses run as one sequence and share a key, so re-triggering any of
// them cancels the whole in-flight sequence.
func jobGroup(kind workflow.Kind) string {
	switch kind {
	case workflow.KindRFP, workflow.KindReferenceProposals, workflow.KindConcept:
		return "step1"
	default:
		return string(kind)
	}
}

func (s *Service) jobKey(proposalID string, kind workflow.Kind) string {
	return proposalID + "/" + jobGroup(kind)
}

func (s *Service) setJobError(key, message string) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if message == "" {
		delete(s.jobErrs, key)
	} else {
		s.jobErrs[key] = message
	}
}

func (s *Service) jobError(key string) string {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.jobErrs[key]
}

// StartAnalysis submits an analysis job and polls it in the background.
// Starting the rfp, referenceProposals or concept kind runs the full
// step-1 sequence in that order. Re-triggering a kind whose job is already
// polling abandons the previous loop (its late results are dropped).
func (s *Service) StartAnalysis(ctx context.Context, proposalID, kindName string, force bool) (AnalysisState, error) {
	kind := workflow.Kind(kindName)
	if !kind.Valid() || kind == workflow.KindFinalSelections {
		return AnalysisState{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown analysis kind", map[string]string{"kind": kindName})
	}
	ctrl, _, err := s.controller(ctx, proposalID)
	if err != nil {
		return AnalysisState{}, err
	}

	var kinds []workflow.Kind
	if jobGroup(kind) == "step1" {
		kinds = []workflow.Kind{workflow.KindRFP, workflow.KindReferenceProposals, workflow.KindConcept}
	} else {
		kinds = []workflow.Kind{kind}
	}

	phases := make([]poll.Phase, 0, len(kinds))
	for _, k := range kinds {
		k := k
		phases = append(phases, poll.Phase{
			Name: string(k),
			Submit: func(ctx context.Context) (poll.Result, error) {
				return s.analysis.Start(ctx, proposalID, k, force)
			},
			Fetch: s.analysis.Fetch(proposalID, k),
		})
	}

	key := s.jobKey(proposalID, kind)
	h := s.registry.Begin(key)
	s.setJobError(key, "")

	go func() {
		defer s.registry.Finish(key, h)
		// The poll loop outlives the HTTP request that started it.
		ctx := context.Background()
		err := poll.RunSequence(ctx, h, phases, s.cfg.PollInterval, s.cfg.PollAttempts, func(name string, data json.RawMessage) {
			s.absorbResult(ctx, ctrl, workflow.Kind(name), data)
		})
		if err != nil && err != poll.ErrCancelled {
			log.Printf("app: analysis %s: %v", key, err)
			s.setJobError(key, err.Error())
		}
	}()

	return AnalysisState{Kind: string(kind), Status: analysisProcessing}, nil
}

// absorbResult normalizes a completed job payload and installs it as an
// artifact. Generated documents also get a version snapshot committed.
func (s *Service) absorbResult(ctx context.Context, ctrl *workflow.Controller, kind workflow.Kind, data json.RawMessage) {
	normalized, ok := analysis.Normalize(data)
	if !ok {
		log.Printf("app: analysis %s/%s returned no content", ctrl.ProposalID(), kind)
		return
	}
	ctrl.SetArtifact(ctx, kind, normalized)

	if kind == workflow.KindConceptDocument || kind == workflow.KindGeneratedDraft {
		markdown, ok := extractMarkdown(normalized)
		if !ok {
			return
		}
		if _, err := s.drafts.CommitDocument(ctrl.ProposalID(), kind, markdown, "grantflow"); err != nil {
			log.Printf("app: commit %s for %s: %v", kind, ctrl.ProposalID(), err)
		}
	}
}

// extractMarkdown pulls the document text out of a generated-document
// artifact. The backend wraps it as {"markdown": ...} or {"document": ...};
// a bare JSON string is accepted too.
func extractMarkdown(raw json.RawMessage) (string, bool) {
	var wrapped struct {
		Markdown string `json:"markdown"`
		Document string `json:"document"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if wrapped.Markdown != "" {
			return wrapped.Markdown, true
		}
		if wrapped.Document != "" {
			return wrapped.Document, true
		}
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
		return plain, true
	}
	return "", false
}

// AnalysisStatus reports the state of one artifact slot. An active poll
// loop wins over a cached artifact: the client sees processing until the
// refreshed result lands.
func (s *Service) AnalysisStatus(ctx context.Context, proposalID, kindName string) (AnalysisState, error) {
	kind := workflow.Kind(kindName)
	if !kind.Valid() {
		return AnalysisState{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown analysis kind", map[string]string{"kind": kindName})
	}
	ctrl, _, err := s.controller(ctx, proposalID)
	if err != nil {
		return AnalysisState{}, err
	}

	key := s.jobKey(proposalID, kind)
	if s.registry.Active(key) {
		return AnalysisState{Kind: kindName, Status: analysisProcessing}, nil
	}
	if data, ok := ctrl.Artifact(kind); ok {
		return AnalysisState{Kind: kindName, Status: analysisCompleted, Data: data}, nil
	}
	if message := s.jobError(key); message != "" {
		return AnalysisState{Kind: kindName, Status: analysisFailed, Error: message}, nil
	}
	return AnalysisState{Kind: kindName, Status: analysisAbsent}, nil
}

func (s *Service) DocumentHistory(ctx context.Context, proposalID, kindName string, limit int) ([]draftrepo.Version, error) {
	kind, err := generatedKind(kindName)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	return s.drafts.History(proposalID, kind, limit)
}

func (s *Service) DocumentVersion(ctx context.Context, proposalID, kindName, hash string) (string, error) {
	kind, err := generatedKind(kindName)
	if err != nil {
		return "", err
	}
	if _, err := s.store.GetProposal(ctx, proposalID); err != nil {
		return "", err
	}
	return s.drafts.DocumentAt(proposalID, kind, hash)
}

func generatedKind(kindName string) (workflow.Kind, error) {
	kind := workflow.Kind(kindName)
	if kind != workflow.KindConceptDocument && kind != workflow.KindGeneratedDraft {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind has no version history", map[string]string{"kind": kindName})
	}
	return kind, nil
}

func (s *Service) Export(ctx context.Context, proposalID string, format export.Format) (*export.Result, error) {
	return s.exporter.Export(ctx, export.Request{ProposalID: proposalID, Format: format})
}

// GetProposalInfo implements export.DataStore.
func (s *Service) GetProposalInfo(ctx context.Context, id string) (export.ProposalInfo, error) {
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return export.ProposalInfo{}, err
	}
	return export.ProposalInfo{
		ID:          p.ID,
		Code:        p.Code,
		Title:       p.Title,
		Description: p.Description,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

// GetDraftMarkdown implements export.DataStore.
func (s *Service) GetDraftMarkdown(ctx context.Context, id string) (string, error) {
	ctrl, _, err := s.controller(ctx, id)
	if err != nil {
		return "", err
	}
	data, ok := ctrl.Artifact(workflow.KindGeneratedDraft)
	if !ok {
		return "", export.ErrContentUnavailable
	}
	markdown, ok := extractMarkdown(data)
	if !ok {
		return "", export.ErrContentUnavailable
	}
	return markdown, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CachePing reports local cache reachability for the readiness probe. A
// nil cache (tests) is treated as healthy since the adapter degrades
// anyway.
func (s *Service) CachePing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}
