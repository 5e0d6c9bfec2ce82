package workflow

import (
	"encoding/json"
	"sync"
)

// ArtifactCache holds the per-proposal analysis results. An absent kind is
// reported via the ok return; the cache never tracks loading state, that is
// the controller's job.
type ArtifactCache struct {
	mu        sync.RWMutex
	artifacts map[Kind]json.RawMessage
}

func NewArtifactCache() *ArtifactCache {
	return &ArtifactCache{artifacts: make(map[Kind]json.RawMessage)}
}

func (c *ArtifactCache) Get(kind Kind) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.artifacts[kind]
	return data, ok
}

func (c *ArtifactCache) Has(kind Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.artifacts[kind]
	return ok
}

func (c *ArtifactCache) Set(kind Kind, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts[kind] = data
}

func (c *ArtifactCache) Clear(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.artifacts, kind)
}

// Snapshot copies the current contents for serialization.
func (c *ArtifactCache) Snapshot() map[Kind]json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Kind]json.RawMessage, len(c.artifacts))
	for kind, data := range c.artifacts {
		out[kind] = data
	}
	return out
}
