package workflow

import "strings"

// MinConceptLength is the minimum free-text concept length accepted at
// step 1 when no concept file was uploaded.
const MinConceptLength = 100

// Inputs holds the user-provided data the readiness predicates inspect.
// It is plain data: predicates recompute from it on every call and are
// never cached.
type Inputs struct {
	HasRFPDocument  bool
	HasConceptFile  bool
	HasDraftFile    bool
	ConceptText     string
	Sections        []string
	SectionComments map[string]string
}

// clampStep redirects out-of-range targets to step 1.
func clampStep(n int) int {
	if n < 1 || n > StepCount {
		return 1
	}
	return n
}

// stepReady reports whether the wizard may advance past the given step.
// The predicate is pure: it looks only at current inputs and artifacts.
func stepReady(step int, inputs Inputs, cache *ArtifactCache) bool {
	switch step {
	case 1:
		conceptOK := len(strings.TrimSpace(inputs.ConceptText)) >= MinConceptLength || inputs.HasConceptFile
		return inputs.HasRFPDocument && conceptOK
	case 2:
		return cache.Has(KindConceptDocument)
	case 3:
		return cache.Has(KindStructureWorkplan)
	default:
		return false
	}
}
