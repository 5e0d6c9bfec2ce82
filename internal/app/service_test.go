package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"grantflow/api/internal/config"
	"grantflow/api/internal/draftrepo"
	"grantflow/api/internal/export"
	"grantflow/api/internal/poll"
	"grantflow/api/internal/search"
	"grantflow/api/internal/store"
	"grantflow/api/internal/workflow"
)

type fakeStore struct {
	mu         sync.Mutex
	proposals  map[string]store.Proposal
	documents  map[string][]store.UploadedDocument
	selections map[string]store.SectionSelection
	pingErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		proposals:  make(map[string]store.Proposal),
		documents:  make(map[string][]store.UploadedDocument),
		selections: make(map[string]store.SectionSelection),
	}
}

func (f *fakeStore) CreateProposal(ctx context.Context, p store.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposals[p.ID] = p
	return nil
}

func (f *fakeStore) GetProposal(ctx context.Context, id string) (store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return store.Proposal{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) ListProposals(ctx context.Context) ([]store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Proposal, 0, len(f.proposals))
	for _, p := range f.proposals {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpdateProposalFields(ctx context.Context, id string, title, description, status, conceptText *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	if title != nil {
		p.Title = *title
	}
	if description != nil {
		p.Description = *description
	}
	if status != nil {
		p.Status = *status
	}
	if conceptText != nil {
		p.ConceptText = *conceptText
	}
	p.UpdatedAt = time.Now().UTC()
	f.proposals[id] = p
	return nil
}

func (f *fakeStore) UpdateCurrentStep(ctx context.Context, id string, step int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.CurrentStep = step
	f.proposals[id] = p
	return nil
}

func (f *fakeStore) DeleteProposal(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.proposals[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.proposals, id)
	delete(f.documents, id)
	delete(f.selections, id)
	return nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, doc store.UploadedDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ProposalID] = append(f.documents[doc.ProposalID], doc)
	return nil
}

func (f *fakeStore) GetDocument(ctx context.Context, proposalID, filename string) (store.UploadedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.documents[proposalID] {
		if doc.Filename == filename {
			return doc, nil
		}
	}
	return store.UploadedDocument{}, sql.ErrNoRows
}

func (f *fakeStore) ListDocuments(ctx context.Context, proposalID string) ([]store.UploadedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.UploadedDocument(nil), f.documents[proposalID]...), nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, proposalID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.documents[proposalID]
	for i, doc := range docs {
		if doc.Filename == filename {
			f.documents[proposalID] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpsertSectionSelection(ctx context.Context, sel store.SectionSelection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections[sel.ProposalID] = sel
	return nil
}

func (f *fakeStore) GetSectionSelection(ctx context.Context, proposalID string) (store.SectionSelection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, ok := f.selections[proposalID]
	if !ok {
		return store.SectionSelection{}, sql.ErrNoRows
	}
	return sel, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

// fakePersister is an in-memory artifact store standing in for the
// Redis+Postgres adapter.
type fakePersister struct {
	mu       sync.Mutex
	data     map[string]map[workflow.Kind][]byte
	clearAll []string
}

func newFakePersister() *fakePersister {
	return &fakePersister{data: make(map[string]map[workflow.Kind][]byte)}
}

func (f *fakePersister) SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[proposalID] == nil {
		f.data[proposalID] = make(map[workflow.Kind][]byte)
	}
	f.data[proposalID][kind] = data
}

func (f *fakePersister) FlushArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) {
}

func (f *fakePersister) ClearArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, kind := range kinds {
		delete(f.data[proposalID], kind)
	}
}

func (f *fakePersister) Load(ctx context.Context, proposalID string) map[workflow.Kind][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[workflow.Kind][]byte)
	for kind, data := range f.data[proposalID] {
		out[kind] = data
	}
	return out
}

func (f *fakePersister) ClearAll(ctx context.Context, proposalID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, proposalID)
	f.clearAll = append(f.clearAll, proposalID)
}

type fakeFiles struct {
	mu         sync.Mutex
	uploads    []string
	deleted    []string
	deletedAll []string
}

func (f *fakeFiles) Upload(ctx context.Context, proposalID, kind, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%s", proposalID, kind, filename)
	f.uploads = append(f.uploads, key)
	return key, nil
}

func (f *fakeFiles) Delete(ctx context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectKey)
	return nil
}

func (f *fakeFiles) DeleteAll(ctx context.Context, proposalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedAll = append(f.deletedAll, proposalID)
	return nil
}

// fakeAnalysis answers every submit with an immediately completed job so
// tests never sleep through poll intervals.
type fakeAnalysis struct {
	mu        sync.Mutex
	submitted []string
	results   map[workflow.Kind]poll.Result
}

func (f *fakeAnalysis) Start(ctx context.Context, proposalID string, kind workflow.Kind, force bool) (poll.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, string(kind))
	if result, ok := f.results[kind]; ok {
		return result, nil
	}
	return poll.Result{Status: poll.StatusCompleted, Data: json.RawMessage(`{"kind":"` + string(kind) + `"}`)}, nil
}

func (f *fakeAnalysis) Fetch(proposalID string, kind workflow.Kind) poll.FetchFunc {
	return func(ctx context.Context) (poll.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if result, ok := f.results[kind]; ok {
			return result, nil
		}
		return poll.Result{Status: poll.StatusCompleted}, nil
	}
}

type fakeDrafts struct {
	mu      sync.Mutex
	commits []string
	removed []string
}

func (f *fakeDrafts) CommitDocument(proposalID string, kind workflow.Kind, markdown, author string) (draftrepo.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, string(kind))
	return draftrepo.Version{Hash: "abc1234", Message: "Generate " + string(kind)}, nil
}

func (f *fakeDrafts) History(proposalID string, kind workflow.Kind, limit int) ([]draftrepo.Version, error) {
	return []draftrepo.Version{}, nil
}

func (f *fakeDrafts) DocumentAt(proposalID string, kind workflow.Kind, hash string) (string, error) {
	return "# draft", nil
}

func (f *fakeDrafts) Remove(proposalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, proposalID)
	return nil
}

type listFallback struct{}

func (listFallback) Search(ctx context.Context, query string, limit int) ([]search.Record, error) {
	return nil, nil
}

type testEnv struct {
	svc      *Service
	store    *fakeStore
	persist  *fakePersister
	files    *fakeFiles
	analysis *fakeAnalysis
	drafts   *fakeDrafts
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		persist:  newFakePersister(),
		files:    &fakeFiles{},
		analysis: &fakeAnalysis{results: make(map[workflow.Kind]poll.Result)},
		drafts:   &fakeDrafts{},
	}
	svc := &Service{
		cfg:         config.Config{PollInterval: time.Millisecond, PollAttempts: 5},
		store:       env.store,
		persist:     env.persist,
		files:       env.files,
		analysis:    env.analysis,
		drafts:      env.drafts,
		search:      search.NewService(nil, listFallback{}),
		registry:    poll.NewRegistry(),
		controllers: make(map[string]*workflow.Controller),
		jobErrs:     make(map[string]string),
	}
	svc.exporter = export.NewService(svc)
	env.svc = svc
	return env
}

// seedReadyProposal creates a proposal whose step-1 inputs are satisfied.
func seedReadyProposal(t *testing.T, env *testEnv) string {
	t.Helper()
	view, err := env.svc.CreateProposal(context.Background(), CreateProposalInput{Title: "Broadband Grant"})
	if err != nil {
		t.Fatalf("CreateProposal failed: %v", err)
	}
	env.store.mu.Lock()
	p := env.store.proposals[view.ID]
	p.ConceptText = longConcept()
	env.store.proposals[view.ID] = p
	env.store.documents[view.ID] = []store.UploadedDocument{{
		ID: "doc-1", ProposalID: view.ID, Kind: store.DocumentKindRFP, Filename: "rfp.pdf", ObjectKey: view.ID + "/rfp/rfp.pdf",
	}}
	env.store.mu.Unlock()
	env.svc.dropController(view.ID)
	return view.ID
}

func longConcept() string {
	text := ""
	for len(text) < workflow.MinConceptLength {
		text += "community broadband access "
	}
	return text
}

// waitForJob blocks until no poll loop is registered for the key.
func waitForJob(t *testing.T, svc *Service, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !svc.registry.Active(key) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not finish", key)
}

func TestCreateProposalRequiresTitle(t *testing.T) {
	env := newTestService(t)
	_, err := env.svc.CreateProposal(context.Background(), CreateProposalInput{Title: "   "})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 DomainError, got %v", err)
	}
}

func TestCreateProposalStartsAtStepOne(t *testing.T) {
	env := newTestService(t)
	view, err := env.svc.CreateProposal(context.Background(), CreateProposalInput{Title: "Broadband Grant", Description: "FY26 application"})
	if err != nil {
		t.Fatalf("CreateProposal failed: %v", err)
	}
	if view.CurrentStep != 1 || len(view.CompletedSteps) != 0 {
		t.Errorf("expected fresh wizard state, got step %d completed %v", view.CurrentStep, view.CompletedSteps)
	}
	if view.Code == "" || view.ID == "" {
		t.Error("expected generated id and code")
	}
	if view.Status != store.StatusDraft {
		t.Errorf("expected draft status, got %s", view.Status)
	}
}

func TestStepOneAnalysisSequence(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	ctx := context.Background()

	if _, err := env.svc.StartAnalysis(ctx, id, "rfp", false); err != nil {
		t.Fatalf("StartAnalysis failed: %v", err)
	}
	waitForJob(t, env.svc, id+"/step1")

	env.analysis.mu.Lock()
	submitted := append([]string(nil), env.analysis.submitted...)
	env.analysis.mu.Unlock()
	want := []string{"rfp", "referenceProposals", "concept"}
	if len(submitted) != len(want) {
		t.Fatalf("expected submissions %v, got %v", want, submitted)
	}
	for i := range want {
		if submitted[i] != want[i] {
			t.Fatalf("expected phase order %v, got %v", want, submitted)
		}
	}

	view, err := env.svc.GetProposal(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !containsInt(view.CompletedSteps, 1) {
		t.Errorf("expected step 1 complete after the sequence, got %v", view.CompletedSteps)
	}

	state, err := env.svc.AnalysisStatus(ctx, id, "concept")
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != analysisCompleted {
		t.Errorf("expected completed concept analysis, got %s", state.Status)
	}
}

func TestGeneratedDocumentGetsVersionCommit(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	ctx := context.Background()
	env.analysis.results[workflow.KindConceptDocument] = poll.Result{
		Status: poll.StatusCompleted,
		Data:   json.RawMessage(`{"markdown":"# Concept\n\nBody."}`),
	}

	if _, err := env.svc.StartAnalysis(ctx, id, "conceptDocument", false); err != nil {
		t.Fatal(err)
	}
	waitForJob(t, env.svc, id+"/conceptDocument")

	env.drafts.mu.Lock()
	commits := append([]string(nil), env.drafts.commits...)
	env.drafts.mu.Unlock()
	if len(commits) != 1 || commits[0] != "conceptDocument" {
		t.Errorf("expected one conceptDocument commit, got %v", commits)
	}
}

func TestAnalysisFailureIsReported(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	ctx := context.Background()
	env.analysis.results[workflow.KindDraftFeedback] = poll.Result{
		Status: poll.StatusFailed,
		Error:  "draft too short",
	}

	if _, err := env.svc.StartAnalysis(ctx, id, "draftFeedback", false); err != nil {
		t.Fatal(err)
	}
	waitForJob(t, env.svc, id+"/draftFeedback")

	state, err := env.svc.AnalysisStatus(ctx, id, "draftFeedback")
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != analysisFailed {
		t.Fatalf("expected failed status, got %s", state.Status)
	}
	if state.Error == "" {
		t.Error("expected the server failure message to surface")
	}
}

func TestStartAnalysisRejectsFinalSelections(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	if _, err := env.svc.StartAnalysis(context.Background(), id, "finalSelections", false); err == nil {
		t.Fatal("finalSelections is user input, not a backend job")
	}
}

func TestDeleteProposalCleansCollaborators(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	ctx := context.Background()

	if err := env.svc.DeleteProposal(ctx, id); err != nil {
		t.Fatalf("DeleteProposal failed: %v", err)
	}
	if _, err := env.svc.GetProposal(ctx, id); err == nil {
		t.Error("expected the proposal to be gone")
	}
	if len(env.persist.clearAll) != 1 || env.persist.clearAll[0] != id {
		t.Errorf("expected local cache cleared, got %v", env.persist.clearAll)
	}
	if len(env.files.deletedAll) != 1 {
		t.Errorf("expected uploaded files removed, got %v", env.files.deletedAll)
	}
	if len(env.drafts.removed) != 1 {
		t.Errorf("expected draft repo removed, got %v", env.drafts.removed)
	}
}

func TestCompletedStatusRequiresFinalStep(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	status := store.StatusCompleted
	_, err := env.svc.UpdateProposal(context.Background(), id, UpdateProposalInput{Status: &status})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 before step 4 is done, got %v", err)
	}
}

func TestConceptTextEditInvalidatesEverything(t *testing.T) {
	env := newTestService(t)
	id := seedReadyProposal(t, env)
	ctx := context.Background()

	ctrl, _, err := env.svc.controller(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range workflow.AllKinds() {
		ctrl.SetArtifact(ctx, kind, json.RawMessage(`{}`))
	}

	text := longConcept() + " revised"
	view, err := env.svc.UpdateProposal(ctx, id, UpdateProposalInput{ConceptText: &text})
	if err != nil {
		t.Fatal(err)
	}
	if len(view.ArtifactKinds) != 0 {
		t.Errorf("expected every artifact cleared, got %v", view.ArtifactKinds)
	}
	if !view.PendingChanges {
		t.Error("expected pendingChanges after the edit")
	}
}

func containsInt(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

