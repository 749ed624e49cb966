package rotation

import (
	"context"
	"testing"
	"time"

	"go.temporal.io/sdk/testsuite"
)

type fakeRotator struct {
	rotated []string
}

func (f *fakeRotator) Rotate(kekID string) { f.rotated = append(f.rotated, kekID) }

func TestActivitiesRotateDekCallsKeyRotator(t *testing.T) {
	rotator := &fakeRotator{}
	a := &Activities{Keys: rotator}

	if err := a.RotateDek(context.Background(), "kek-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rotator.rotated) != 1 || rotator.rotated[0] != "kek-1" {
		t.Fatalf("expected Rotate to be called once with kek-1, got %v", rotator.rotated)
	}
}

func TestRotateWorkflowRotatesOnEachTickUntilCancelled(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	rotator := &fakeRotator{}
	env.RegisterActivity(&Activities{Keys: rotator})

	// RotateWorkflow loops forever; cancel it once the virtual clock has
	// advanced far enough for a few ticks at a one-second interval.
	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, 3500*time.Millisecond)

	env.ExecuteWorkflow(RotateWorkflow, "kek-1", time.Second)

	if !env.IsWorkflowCompleted() {
		t.Fatal("expected the workflow to have completed via cancellation")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected a cancellation error from the workflow")
	}
	if len(rotator.rotated) < 2 {
		t.Fatalf("expected at least two rotation ticks before cancellation, got %d", len(rotator.rotated))
	}
	for _, id := range rotator.rotated {
		if id != "kek-1" {
			t.Fatalf("expected every tick to rotate kek-1, got %q", id)
		}
	}
}
