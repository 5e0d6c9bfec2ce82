package persist

import (
	"context"
	"errors"
	"testing"

	"grantflow/api/internal/workflow"
)

// fakeStore is an in-memory Local/Remote with injectable failures.
type fakeStore struct {
	data    map[string][]byte
	saveErr error
	loadErr error
	delErr  error
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) key(proposalID string, kind workflow.Kind) string {
	return proposalID + "/" + string(kind)
}

func (f *fakeStore) SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.data[f.key(proposalID, kind)] = data
	return nil
}

func (f *fakeStore) LoadArtifacts(ctx context.Context, proposalID string) (map[workflow.Kind][]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[workflow.Kind][]byte)
	for _, kind := range workflow.AllKinds() {
		if data, ok := f.data[f.key(proposalID, kind)]; ok {
			out[kind] = data
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, kind := range kinds {
		delete(f.data, f.key(proposalID, kind))
	}
	return nil
}

func (f *fakeStore) DeleteAll(ctx context.Context, proposalID string) error {
	return f.DeleteArtifacts(ctx, proposalID, workflow.AllKinds())
}

func TestLoadMergesRemoteWins(t *testing.T) {
	local := newFakeStore()
	remote := newFakeStore()
	ctx := context.Background()

	local.SaveArtifact(ctx, "prop-1", workflow.KindRFP, []byte(`{"stale":true}`))
	local.SaveArtifact(ctx, "prop-1", workflow.KindConcept, []byte(`{"localOnly":true}`))
	remote.SaveArtifact(ctx, "prop-1", workflow.KindRFP, []byte(`{"fresh":true}`))
	local.saves = 0

	adapter := New(local, remote)
	merged := adapter.Load(ctx, "prop-1")

	if string(merged[workflow.KindRFP]) != `{"fresh":true}` {
		t.Errorf("remote value must win, got %s", merged[workflow.KindRFP])
	}
	if string(merged[workflow.KindConcept]) != `{"localOnly":true}` {
		t.Errorf("local-only value must survive, got %s", merged[workflow.KindConcept])
	}

	// The disagreeing local entry was rehydrated from the remote copy.
	rehydrated, _ := local.LoadArtifacts(ctx, "prop-1")
	if string(rehydrated[workflow.KindRFP]) != `{"fresh":true}` {
		t.Errorf("expected local rehydrate, got %s", rehydrated[workflow.KindRFP])
	}
}

func TestLoadRemoteFailureFallsBackToLocal(t *testing.T) {
	local := newFakeStore()
	remote := newFakeStore()
	ctx := context.Background()

	local.SaveArtifact(ctx, "prop-1", workflow.KindConcept, []byte(`{"cached":true}`))
	remote.loadErr = errors.New("connection refused")

	merged := New(local, remote).Load(ctx, "prop-1")
	if string(merged[workflow.KindConcept]) != `{"cached":true}` {
		t.Errorf("expected local data on remote failure, got %s", merged[workflow.KindConcept])
	}
}

func TestLoadLocalFailureStillReturnsRemote(t *testing.T) {
	local := newFakeStore()
	remote := newFakeStore()
	ctx := context.Background()

	local.loadErr = errors.New("redis down")
	remote.SaveArtifact(ctx, "prop-1", workflow.KindRFP, []byte(`{"durable":true}`))

	merged := New(local, remote).Load(ctx, "prop-1")
	if string(merged[workflow.KindRFP]) != `{"durable":true}` {
		t.Errorf("expected remote data on local failure, got %s", merged[workflow.KindRFP])
	}
}

func TestWriteFailuresAreSwallowed(t *testing.T) {
	local := newFakeStore()
	remote := newFakeStore()
	local.saveErr = errors.New("redis down")
	remote.saveErr = errors.New("postgres down")
	local.delErr = errors.New("redis down")
	remote.delErr = errors.New("postgres down")

	adapter := New(local, remote)
	ctx := context.Background()

	// None of these may panic or surface the failure.
	adapter.SaveArtifact(ctx, "prop-1", workflow.KindRFP, []byte(`{}`))
	adapter.FlushArtifact(ctx, "prop-1", workflow.KindRFP, []byte(`{}`))
	adapter.ClearArtifacts(ctx, "prop-1", workflow.KindsInvalidatedBy(1))
	adapter.ClearAll(ctx, "prop-1")
}

func TestSaveIsLocalOnlyFlushIsRemoteOnly(t *testing.T) {
	local := newFakeStore()
	remote := newFakeStore()
	adapter := New(local, remote)
	ctx := context.Background()

	adapter.SaveArtifact(ctx, "prop-1", workflow.KindConcept, []byte(`{}`))
	if local.saves != 1 || remote.saves != 0 {
		t.Errorf("SaveArtifact: expected local-only write, got local=%d remote=%d", local.saves, remote.saves)
	}

	adapter.FlushArtifact(ctx, "prop-1", workflow.KindConcept, []byte(`{}`))
	if remote.saves != 1 {
		t.Errorf("FlushArtifact: expected remote write, got %d", remote.saves)
	}
}

func TestClearArtifactsClearsBothStores(t *testing.T) {
	local := newFakeStore()
	remote := newFakeStore()
	ctx := context.Background()
	for _, kind := range workflow.AllKinds() {
		local.SaveArtifact(ctx, "prop-1", kind, []byte(`{}`))
		remote.SaveArtifact(ctx, "prop-1", kind, []byte(`{}`))
	}

	New(local, remote).ClearArtifacts(ctx, "prop-1", workflow.KindsInvalidatedBy(2))

	for _, store := range []*fakeStore{local, remote} {
		remaining, _ := store.LoadArtifacts(ctx, "prop-1")
		if _, ok := remaining[workflow.KindConceptDocument]; ok {
			t.Error("conceptDocument should be gone from both stores")
		}
		if _, ok := remaining[workflow.KindRFP]; !ok {
			t.Error("rfp should remain in both stores")
		}
	}
}
