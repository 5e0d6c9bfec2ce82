package workflow

import "testing"

func TestKindsInvalidatedByExactTable(t *testing.T) {
	expected := map[int][]Kind{
		1: {KindRFP, KindReferenceProposals, KindConcept, KindConceptDocument, KindStructureWorkplan, KindGeneratedDraft, KindDraftFeedback, KindFinalSelections},
		2: {KindConceptDocument, KindStructureWorkplan, KindGeneratedDraft, KindDraftFeedback, KindFinalSelections},
		3: {KindStructureWorkplan, KindGeneratedDraft, KindDraftFeedback, KindFinalSelections},
		4: {KindDraftFeedback, KindFinalSelections},
	}

	for step, want := range expected {
		got := KindsInvalidatedBy(step)
		if len(got) != len(want) {
			t.Fatalf("step %d: expected %d kinds, got %d", step, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("step %d: position %d expected %s, got %s", step, i, want[i], got[i])
			}
		}
	}
}

func TestKindsInvalidatedByNeverTouchesEarlierSteps(t *testing.T) {
	for step := 1; step <= StepCount; step++ {
		for _, kind := range KindsInvalidatedBy(step) {
			if kind.Step() < step {
				t.Errorf("step %d invalidates %s owned by earlier step %d", step, kind, kind.Step())
			}
		}
	}
}

func TestKindsInvalidatedByUnknownStep(t *testing.T) {
	if got := KindsInvalidatedBy(0); len(got) != 0 {
		t.Errorf("expected no kinds for step 0, got %v", got)
	}
	if got := KindsInvalidatedBy(5); len(got) != 0 {
		t.Errorf("expected no kinds for step 5, got %v", got)
	}
}

func TestSameSelectionSetIgnoresOrder(t *testing.T) {
	if !sameSelectionSet([]string{"a", "b", "c"}, []string{"c", "a", "b"}) {
		t.Error("reordered selections should compare equal")
	}
	if sameSelectionSet([]string{"a", "b"}, []string{"a", "c"}) {
		t.Error("different selections should not compare equal")
	}
	if sameSelectionSet([]string{"a", "b"}, []string{"a"}) {
		t.Error("subset should not compare equal")
	}
	if !sameSelectionSet(nil, nil) {
		t.Error("two empty selections should compare equal")
	}
}

func TestSameComments(t *testing.T) {
	if !sameComments(map[string]string{"a": "x"}, map[string]string{"a": "x"}) {
		t.Error("identical comments should compare equal")
	}
	if sameComments(map[string]string{"a": "x"}, map[string]string{"a": "y"}) {
		t.Error("changed comment text should not compare equal")
	}
	if sameComments(map[string]string{"a": "x"}, map[string]string{}) {
		t.Error("removed comment should not compare equal")
	}
}
