// Package rotation runs a Temporal workflow that proactively rotates a
// virtual cluster's DEK on a fixed interval, independent of the lazy
// TTL/count-based expiry internal/encryption.KeyManager already enforces
// on the hot path. Rotation here only retires the current DEK (the next
// KeyManager.Lease mints a replacement on demand), so it caps how long one
// DEK stays in use, and it never blocks a connection's Produce/Fetch
// handling.
//
// Grounded on the teacher's orderflow example (examples/orderflow/workflow.go,
// run.go): same ActivityOptions/RetryPolicy shape and Activities-struct
// dependency injection, same worker.New/RegisterWorkflow/RegisterActivity
// wiring, used directly against go.temporal.io/sdk/client rather than
// through the teacher's connect/temporalx wrapper (which resolves a rig
// environment's Temporal egress — this proxy takes a host:port from its
// own config instead).
package rotation

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// KeyRotator is the subset of encryption.KeyManager the rotation activity
// needs, kept narrow so this package doesn't import internal/encryption
// just to call one method.
type KeyRotator interface {
	Rotate(kekID string)
}

// Activities bundles the dependencies RotateDek needs.
type Activities struct {
	Keys KeyRotator
}

// RotateDek retires the current DEK for kekID, so the next encrypting
// request mints a fresh one via KeyManager.Lease.
func (a *Activities) RotateDek(ctx context.Context, kekID string) error {
	a.Keys.Rotate(kekID)
	return nil
}

// RotateWorkflow runs RotateDek once per tick until cancelled, sleeping
// interval between rotations via workflow.Sleep so the schedule survives
// worker restarts without re-registering a cron.
func RotateWorkflow(ctx workflow.Context, kekID string, interval time.Duration) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	for {
		if err := workflow.ExecuteActivity(ctx, (*Activities).RotateDek, kekID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// TaskQueue is the default Temporal task queue rotation workflows and
// workers use when a cluster's config doesn't override it.
const TaskQueue = "edgekafka-dek-rotation"

// StartWorker registers and starts a worker processing RotateWorkflow for
// one Temporal client. Callers stop it via the returned worker.Worker's
// Stop method, normally from a run.Runner's context-cancellation path.
func StartWorker(c client.Client, taskQueue string, keys KeyRotator) (worker.Worker, error) {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(RotateWorkflow)
	w.RegisterActivity(&Activities{Keys: keys})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// StartRotation kicks off (or no-ops if already running) the recurring
// rotation workflow for one kekID, using a deterministic workflow ID so a
// restart doesn't spawn a duplicate.
func StartRotation(ctx context.Context, c client.Client, taskQueue, kekID string, interval time.Duration) error {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	opts := client.StartWorkflowOptions{
		ID:                    "dek-rotation-" + kekID,
		TaskQueue:             taskQueue,
		WorkflowIDReusePolicy: 0, // default: reject duplicate while running
	}
	_, err := c.ExecuteWorkflow(ctx, opts, RotateWorkflow, kekID, interval)
	return err
}
