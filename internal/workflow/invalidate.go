package workflow

// cascade maps "step K's inputs changed" to the artifact kinds that can no
// longer be trusted. The table is exact: kinds owned by steps before K are
// never touched.
var cascade = map[int][]Kind{
	1: {
		KindRFP,
		KindReferenceProposals,
		KindConcept,
		KindConceptDocument,
		KindStructureWorkplan,
		KindGeneratedDraft,
		KindDraftFeedback,
		KindFinalSelections,
	},
	2: {
		KindConceptDocument,
		KindStructureWorkplan,
		KindGeneratedDraft,
		KindDraftFeedback,
		KindFinalSelections,
	},
	3: {
		KindStructureWorkplan,
		KindGeneratedDraft,
		KindDraftFeedback,
		KindFinalSelections,
	},
	4: {
		KindDraftFeedback,
		KindFinalSelections,
	},
}

// KindsInvalidatedBy returns the artifact kinds cleared when the given
// step's inputs change. Unknown steps clear nothing.
func KindsInvalidatedBy(step int) []Kind {
	kinds := cascade[step]
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// sameSelectionSet compares two section selections as sets: order does not
// matter, duplicates collapse.
func sameSelectionSet(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
		other[v] = struct{}{}
	}
	return len(seen) == len(other)
}

func sameComments(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
