// Package persist composes the two artifact stores behind one adapter: a
// local ephemeral cache (Redis) written through on every change, and the
// remote durable store (Postgres) that wins whenever the two disagree.
// Storage failures are never surfaced; the adapter logs and degrades to
// best-available data.
package persist

import (
	"bytes"
	"context"
	"log"

	"grantflow/api/internal/workflow"
)

type Local interface {
	SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) error
	LoadArtifacts(ctx context.Context, proposalID string) (map[workflow.Kind][]byte, error)
	DeleteArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) error
	DeleteAll(ctx context.Context, proposalID string) error
}

type Remote interface {
	LoadArtifacts(ctx context.Context, proposalID string) (map[workflow.Kind][]byte, error)
	SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) error
	DeleteArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) error
}

type Adapter struct {
	local  Local
	remote Remote
}

func New(local Local, remote Remote) *Adapter {
	return &Adapter{local: local, remote: remote}
}

// Load reconciles both stores for a proposal. Local entries are read first
// (best effort), then the remote snapshot; where both hold a kind and
// disagree, the remote value wins and the local copy is rehydrated. If the
// remote read fails the local values are returned as-is.
func (a *Adapter) Load(ctx context.Context, proposalID string) map[workflow.Kind][]byte {
	localArtifacts, err := a.local.LoadArtifacts(ctx, proposalID)
	if err != nil {
		log.Printf("persist: local load for %s: %v", proposalID, err)
		localArtifacts = map[workflow.Kind][]byte{}
	}

	remoteArtifacts, err := a.remote.LoadArtifacts(ctx, proposalID)
	if err != nil {
		log.Printf("persist: remote load for %s, keeping local only: %v", proposalID, err)
		return localArtifacts
	}

	merged := make(map[workflow.Kind][]byte, len(remoteArtifacts)+len(localArtifacts))
	for kind, data := range localArtifacts {
		merged[kind] = data
	}
	for kind, data := range remoteArtifacts {
		if existing, ok := merged[kind]; !ok || !bytes.Equal(existing, data) {
			merged[kind] = data
			if saveErr := a.local.SaveArtifact(ctx, proposalID, kind, data); saveErr != nil {
				log.Printf("persist: rehydrate %s/%s: %v", proposalID, kind, saveErr)
			}
		}
	}
	return merged
}

// SaveArtifact write-throughs the local cache. The remote mirror is a
// separate, explicit step (FlushArtifact) invoked by the owning component
// after meaningful mutations.
func (a *Adapter) SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) {
	if err := a.local.SaveArtifact(ctx, proposalID, kind, data); err != nil {
		log.Printf("persist: local save %s/%s: %v", proposalID, kind, err)
	}
}

// FlushArtifact mirrors an artifact to the remote store.
func (a *Adapter) FlushArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) {
	if err := a.remote.SaveArtifact(ctx, proposalID, kind, data); err != nil {
		log.Printf("persist: remote save %s/%s: %v", proposalID, kind, err)
	}
}

// ClearArtifacts removes the given kinds from both stores.
func (a *Adapter) ClearArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) {
	if err := a.local.DeleteArtifacts(ctx, proposalID, kinds); err != nil {
		log.Printf("persist: local clear %s: %v", proposalID, err)
	}
	if err := a.remote.DeleteArtifacts(ctx, proposalID, kinds); err != nil {
		log.Printf("persist: remote clear %s: %v", proposalID, err)
	}
}

// ClearAll removes every local cache entry for the proposal (remote rows
// are removed by the proposal delete itself, via ON DELETE CASCADE).
func (a *Adapter) ClearAll(ctx context.Context, proposalID string) {
	if err := a.local.DeleteAll(ctx, proposalID); err != nil {
		log.Printf("persist: local clear all %s: %v", proposalID, err)
	}
}
