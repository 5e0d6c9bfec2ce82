package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"grantflow/api/internal/workflow"
)

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, _ := response["ok"].(bool); !ok {
		t.Errorf("expected ok=true, got %v", response["ok"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	env.store.pingErr = errors.New("connection refused")
	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the database is down, got %d", rr.Code)
	}
}

func TestCreateProposalEndpoint(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/proposals", CreateProposalInput{Title: "Broadband Grant"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var view ProposalView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.ID == "" || view.CurrentStep != 1 {
		t.Errorf("unexpected view: %+v", view)
	}

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/proposals", CreateProposalInput{Title: ""})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a missing title, got %d", rr.Code)
	}
}

func TestGetProposalNotFound(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/proposals/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var response map[string]any
	json.Unmarshal(rr.Body.Bytes(), &response)
	if response["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND code, got %v", response["code"])
	}
}

func TestStepNavigationGating(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")

	view, err := env.svc.CreateProposal(context.Background(), CreateProposalInput{Title: "Broadband Grant"})
	if err != nil {
		t.Fatal(err)
	}

	// Nothing uploaded yet: forward navigation is refused.
	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/proposals/"+view.ID+"/step", map[string]int{"step": 2})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var response map[string]any
	json.Unmarshal(rr.Body.Bytes(), &response)
	if response["code"] != "STEP_NOT_READY" {
		t.Errorf("expected STEP_NOT_READY, got %v", response["code"])
	}

	// Satisfy step 1 and retry.
	id := seedReadyProposal(t, env)
	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/proposals/"+id+"/step", map[string]int{"step": 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 once step 1 is ready, got %d: %s", rr.Code, rr.Body.String())
	}
	var moved ProposalView
	json.Unmarshal(rr.Body.Bytes(), &moved)
	if moved.CurrentStep != 2 {
		t.Errorf("expected step 2, got %d", moved.CurrentStep)
	}
}

func uploadRequest(t *testing.T, path, kind, filename string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("kind", kind); err != nil {
		t.Fatal(err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("file contents"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadDraftFiresNarrowInvalidation(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)
	ctx := context.Background()

	ctrl, _, err := env.svc.controller(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range workflow.AllKinds() {
		ctrl.SetArtifact(ctx, kind, json.RawMessage(`{}`))
	}

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, uploadRequest(t, "/api/proposals/"+id+"/documents", "draft", "proposal-draft.docx"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	// Feedback for the previous draft is gone, everything upstream stays.
	if _, ok := ctrl.Artifact(workflow.KindDraftFeedback); ok {
		t.Error("draftFeedback should be cleared by a draft upload")
	}
	if _, ok := ctrl.Artifact(workflow.KindGeneratedDraft); !ok {
		t.Error("generatedDraft should survive a draft upload")
	}
	if _, ok := ctrl.Artifact(workflow.KindConceptDocument); !ok {
		t.Error("conceptDocument should survive a draft upload")
	}
}

func TestUploadRFPFiresFullCascade(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)
	ctx := context.Background()

	ctrl, _, err := env.svc.controller(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range workflow.AllKinds() {
		ctrl.SetArtifact(ctx, kind, json.RawMessage(`{}`))
	}

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, uploadRequest(t, "/api/proposals/"+id+"/documents", "rfp", "updated-rfp.pdf"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	for _, kind := range workflow.AllKinds() {
		if _, ok := ctrl.Artifact(kind); ok {
			t.Errorf("%s should be cleared by an RFP re-upload", kind)
		}
	}
}

func TestUploadRejectsUnknownKind(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, uploadRequest(t, "/api/proposals/"+id+"/documents", "spreadsheet", "budget.xlsx"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestSectionSelectionEndpointNoDocumentNoInvalidation(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)

	rr := doRequest(t, server.Handler(), http.MethodPut, "/api/proposals/"+id+"/sections",
		SectionSelectionInput{Sections: []string{"background", "budget"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var view ProposalView
	json.Unmarshal(rr.Body.Bytes(), &view)
	if view.PendingChanges {
		t.Error("a first selection with no concept document must not raise pendingChanges")
	}
	if len(view.Sections) != 2 {
		t.Errorf("expected the selection persisted, got %v", view.Sections)
	}
}

func TestFinalSelectionsEndpoint(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)

	rr := doRequest(t, server.Handler(), http.MethodPut, "/api/proposals/"+id+"/final-selections",
		map[string]any{"accepted": []string{"f1", "f3"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var view ProposalView
	json.Unmarshal(rr.Body.Bytes(), &view)
	found := false
	for _, kind := range view.ArtifactKinds {
		if kind == string(workflow.KindFinalSelections) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected finalSelections artifact, got %v", view.ArtifactKinds)
	}
}

func TestExportWithoutDraftIsConflict(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/proposals/"+id+"/export?format=pdf", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a generated draft, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "CONTENT_UNAVAILABLE") {
		t.Errorf("expected CONTENT_UNAVAILABLE, got %s", rr.Body.String())
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	env := newTestService(t)
	server := NewHTTPServer(env.svc, "*")
	id := seedReadyProposal(t, env)

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/proposals/"+id+"/export?format=rtf", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}
