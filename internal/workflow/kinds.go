// Package workflow implements the proposal wizard state machine: step
// navigation, the per-proposal artifact cache, the invalidation cascade
// that fires when an earlier step's inputs change, and the rule that
// derives completed steps from artifact presence.
package workflow

// Kind names one analysis or generated-document artifact attached to a
// proposal. The values double as wire names and local cache key segments
// (proposal_<kind>_<proposalId>).
type Kind string

const (
	KindRFP                Kind = "rfp"
	KindReferenceProposals Kind = "referenceProposals"
	KindConcept            Kind = "concept"
	KindConceptDocument    Kind = "conceptDocument"
	KindStructureWorkplan  Kind = "structureWorkplan"
	KindGeneratedDraft     Kind = "generatedDraft"
	KindDraftFeedback      Kind = "draftFeedback"
	// KindFinalSelections holds the step-4 user selections (which feedback
	// items to apply). It is cleared by every invalidation trigger.
	KindFinalSelections Kind = "finalSelections"
)

// StepCount is the number of wizard steps in the proposal writer variant.
const StepCount = 4

var kindOwners = map[Kind]int{
	KindRFP:                1,
	KindReferenceProposals: 1,
	KindConcept:            1,
	KindConceptDocument:    2,
	KindStructureWorkplan:  3,
	KindGeneratedDraft:     3,
	KindDraftFeedback:      4,
	KindFinalSelections:    4,
}

// AllKinds returns every artifact kind in owning-step order.
func AllKinds() []Kind {
	return []Kind{
		KindRFP,
		KindReferenceProposals,
		KindConcept,
		KindConceptDocument,
		KindStructureWorkplan,
		KindGeneratedDraft,
		KindDraftFeedback,
		KindFinalSelections,
	}
}

// Step reports the wizard step that owns this artifact kind, or 0 for an
// unknown kind.
func (k Kind) Step() int {
	return kindOwners[k]
}

func (k Kind) Valid() bool {
	_, ok := kindOwners[k]
	return ok
}
