package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrStepNotReady is returned when a forward navigation is attempted before
// the readiness predicate of an intermediate step holds.
var ErrStepNotReady = errors.New("step requirements not met")

// Persister is the write side of the persistence adapter the controller
// drives. Implementations swallow storage failures and degrade to
// best-available data; that is why these methods return nothing.
type Persister interface {
	// SaveArtifact write-throughs the local ephemeral cache.
	SaveArtifact(ctx context.Context, proposalID string, kind Kind, data []byte)
	// FlushArtifact mirrors an artifact to the remote durable store.
	FlushArtifact(ctx context.Context, proposalID string, kind Kind, data []byte)
	// ClearArtifacts removes the given kinds from both stores.
	ClearArtifacts(ctx context.Context, proposalID string, kinds []Kind)
}

// Controller owns the wizard state for one proposal. Child components never
// mutate the artifact cache directly; every mutation goes through a
// controller method.
type Controller struct {
	mu         sync.Mutex
	proposalID string
	persist    Persister

	inputs      Inputs
	cache       *ArtifactCache
	currentStep int
	completed   []int

	// pendingChanges is raised by an invalidation and cleared the next time
	// the completion recompute reaches a fixed point.
	pendingChanges bool
	pendingStep    int

	// stepOneEdited disables the downstream completion inference once any
	// step-1 input was touched this session.
	stepOneEdited bool
}

func NewController(proposalID string, persist Persister) *Controller {
	return &Controller{
		proposalID:  proposalID,
		persist:     persist,
		cache:       NewArtifactCache(),
		currentStep: 1,
		completed:   []int{},
	}
}

// Hydrate installs state loaded from persistence without firing any
// invalidation or pending-change bookkeeping.
func (c *Controller) Hydrate(inputs Inputs, currentStep int, artifacts map[Kind][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = inputs
	c.currentStep = clampStep(currentStep)
	for kind, data := range artifacts {
		if kind.Valid() && len(data) > 0 {
			c.cache.Set(kind, json.RawMessage(data))
		}
	}
	c.completed = deriveCompleted(c.inputs, c.cache, c.stepOneEdited)
}

func (c *Controller) ProposalID() string { return c.proposalID }

func (c *Controller) CurrentStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStep
}

// Artifact returns the cached result for a kind. Absence is distinct from
// in-flight: the caller tracks loading state via the poll registry.
func (c *Controller) Artifact(kind Kind) (json.RawMessage, bool) {
	return c.cache.Get(kind)
}

// SetArtifact stores a completed analysis result, persists it locally and
// remotely, and recomputes the completed-steps set.
func (c *Controller) SetArtifact(ctx context.Context, kind Kind, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Set(kind, data)
	c.persist.SaveArtifact(ctx, c.proposalID, kind, data)
	c.persist.FlushArtifact(ctx, c.proposalID, kind, data)
	c.recomputeLocked()
}

// InvalidateFromStep clears every artifact owned by the given step or a
// later one, removes their persisted copies, and raises pendingChanges.
// It returns the kinds that were cleared.
func (c *Controller) InvalidateFromStep(ctx context.Context, step int) []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidateLocked(ctx, step)
}

func (c *Controller) invalidateLocked(ctx context.Context, step int) []Kind {
	kinds := KindsInvalidatedBy(step)
	for _, kind := range kinds {
		c.cache.Clear(kind)
	}
	c.persist.ClearArtifacts(ctx, c.proposalID, kinds)
	c.recomputeLocked()
	// Raised after the recompute so the flag survives until the next
	// recompute reaches a fixed point.
	c.pendingChanges = true
	if c.pendingStep == 0 || step < c.pendingStep {
		c.pendingStep = step
	}
	return kinds
}

// UpdateStepOneInputs records edited step-1 inputs and fires the full
// step-1 cascade. It also pins completion derivation to the current inputs
// for the rest of the session.
func (c *Controller) UpdateStepOneInputs(ctx context.Context, hasRFP, hasConceptFile bool, conceptText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.HasRFPDocument = hasRFP
	c.inputs.HasConceptFile = hasConceptFile
	c.inputs.ConceptText = conceptText
	c.stepOneEdited = true
	c.invalidateLocked(ctx, 1)
}

// UpdateDraftUpload records that the step-4 draft file changed (uploaded,
// replaced or removed) and clears only the feedback produced for the
// previous draft.
func (c *Controller) UpdateDraftUpload(ctx context.Context, hasDraft bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.HasDraftFile = hasDraft
	c.invalidateLocked(ctx, 4)
}

// UpdateSectionSelection stores the step-2 section selection and comments.
// When the selection set actually changed and a concept document has
// already been generated, the step-2 cascade fires; on first visit (no
// document yet) the update is a plain persist with no invalidation.
// Selection equality is order-independent. Reports whether artifacts were
// invalidated.
func (c *Controller) UpdateSectionSelection(ctx context.Context, sections []string, comments map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := !sameSelectionSet(c.inputs.Sections, sections) || !sameComments(c.inputs.SectionComments, comments)
	c.inputs.Sections = append([]string(nil), sections...)
	c.inputs.SectionComments = comments

	if !changed || !c.cache.Has(KindConceptDocument) {
		return false
	}
	c.invalidateLocked(ctx, 2)
	return true
}

// GoToStep navigates the wizard. Out-of-range targets redirect to step 1.
// Moving backward is always allowed; moving forward requires every
// intermediate step's readiness predicate to hold.
func (c *Controller) GoToStep(n int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := clampStep(n)
	if target <= c.currentStep {
		c.currentStep = target
		return target, nil
	}
	for step := c.currentStep; step < target; step++ {
		if !stepReady(step, c.inputs, c.cache) {
			return c.currentStep, ErrStepNotReady
		}
	}
	c.currentStep = target
	return target, nil
}

// Recompute re-derives completedSteps from current inputs and artifacts.
// It is idempotent: a second call with no intervening change returns the
// identical set and clears pendingChanges.
func (c *Controller) Recompute() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recomputeLocked()
}

func (c *Controller) recomputeLocked() []int {
	next := deriveCompleted(c.inputs, c.cache, c.stepOneEdited)
	if sameSteps(next, c.completed) {
		// Fixed point reached: the invalidation has been fully absorbed.
		c.pendingChanges = false
		c.pendingStep = 0
		return c.completed
	}
	c.completed = next
	return c.completed
}

func (c *Controller) CompletedSteps() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.completed))
	copy(out, c.completed)
	return out
}

func (c *Controller) PendingChanges() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingChanges, c.pendingStep
}

func (c *Controller) Inputs() Inputs {
	c.mu.Lock()
	defer c.mu.Unlock()
	inputs := c.inputs
	inputs.Sections = append([]string(nil), c.inputs.Sections...)
	return inputs
}

// State is a read-only snapshot for API responses.
type State struct {
	CurrentStep    int
	CompletedSteps []int
	PendingChanges bool
	PendingStep    int
	Inputs         Inputs
	Artifacts      map[Kind]json.RawMessage
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	completed := make([]int, len(c.completed))
	copy(completed, c.completed)
	return State{
		CurrentStep:    c.currentStep,
		CompletedSteps: completed,
		PendingChanges: c.pendingChanges,
		PendingStep:    c.pendingStep,
		Inputs:         c.inputs,
		Artifacts:      c.cache.Snapshot(),
	}
}
