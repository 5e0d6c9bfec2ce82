package workflow

// deriveCompleted recomputes the completed-steps set from artifact presence.
// The set is never stored independently, so clearing artifacts automatically
// un-completes downstream steps. The result is always a prefix of
// {1..StepCount}, with one documented relaxation: see
// inferStepOneFromDownstream.
func deriveCompleted(inputs Inputs, cache *ArtifactCache, stepOneEdited bool) []int {
	stepOne := stepReady(1, inputs, cache) &&
		cache.Has(KindRFP) &&
		cache.Has(KindConcept)
	if !stepOne {
		stepOne = inferStepOneFromDownstream(cache, stepOneEdited)
	}

	completed := make([]int, 0, StepCount)
	if !stepOne {
		return completed
	}
	completed = append(completed, 1)

	if !cache.Has(KindConceptDocument) {
		return completed
	}
	completed = append(completed, 2)

	if !cache.Has(KindStructureWorkplan) && !cache.Has(KindGeneratedDraft) {
		return completed
	}
	completed = append(completed, 3)

	if cache.Has(KindDraftFeedback) {
		completed = append(completed, 4)
	}
	return completed
}

// inferStepOneFromDownstream treats step 1 as complete when downstream
// artifacts exist even though the step-1 artifacts or inputs were lost
// (typically a reload that dropped the local cache). The inference is
// disabled as soon as the user edits any step-1 input in the current
// session: from then on the current inputs win.
func inferStepOneFromDownstream(cache *ArtifactCache, stepOneEdited bool) bool {
	if stepOneEdited {
		return false
	}
	return cache.Has(KindConceptDocument) ||
		cache.Has(KindStructureWorkplan) ||
		cache.Has(KindGeneratedDraft)
}

func sameSteps(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
