package procflow

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/procflow/model"
	"github.com/viant/procflow/progress"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/dao/workflow"
	"github.com/viant/procflow/service/engine"
	"github.com/viant/procflow/service/task"
)

// Wait blocks until the started process is no longer running.
type Wait func(ctx context.Context, timeout time.Duration) (*execution.Snapshot, error)

// Runtime represents a workflow engine runtime
type Runtime struct {
	engine      *engine.Engine
	workflowDAO *workflow.Service
	tasks       task.Queue
	close       func(ctx context.Context) error
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// LoadWorkflow loads a definition through the meta service.
func (r *Runtime) LoadWorkflow(ctx context.Context, location string) (*model.Workflow, error) {
	return r.workflowDAO.Load(ctx, location)
}

// DecodeYAMLWorkflow parses a definition from YAML.
func (r *Runtime) DecodeYAMLWorkflow(data []byte) (*model.Workflow, error) {
	return r.workflowDAO.DecodeYAML(data)
}

// RefreshWorkflow discards a cached definition so the next LoadWorkflow
// reads it again.
func (r *Runtime) RefreshWorkflow(location string) {
	r.workflowDAO.Refresh(location)
}

// RegisterWorkflow makes a definition startable as id or id@version.
func (r *Runtime) RegisterWorkflow(ctx context.Context, workflow *model.Workflow) (string, error) {
	return r.engine.RegisterWorkflow(ctx, workflow)
}

// DeployWorkflow loads and registers the definition at location.
func (r *Runtime) DeployWorkflow(ctx context.Context, location string) (*model.Workflow, error) {
	workflow, err := r.LoadWorkflow(ctx, location)
	if err != nil {
		return nil, err
	}
	if _, err = r.engine.RegisterWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", location, err)
	}
	return workflow, nil
}

// StartProcess starts an instance of a registered workflow and returns its
// id with a function waiting for it to leave the running state.
func (r *Runtime) StartProcess(ctx context.Context, workflowRef, initiator string, inputs map[string]interface{}) (string, Wait, error) {
	id, err := r.engine.StartProcess(ctx, workflowRef, initiator, inputs)
	if err != nil {
		return "", nil, err
	}
	wait := func(ctx context.Context, timeout time.Duration) (*execution.Snapshot, error) {
		return r.engine.Wait(ctx, id, timeout)
	}
	return id, wait, nil
}

// CompleteTask completes a human task and resumes its process.
func (r *Runtime) CompleteTask(ctx context.Context, taskID, userID string, outputs map[string]interface{}) error {
	return r.engine.CompleteTask(ctx, taskID, userID, outputs)
}

// Tasks returns the human task queue.
func (r *Runtime) Tasks() task.Queue {
	return r.tasks
}

// PendingTasks lists tasks awaiting completion.
func (r *Runtime) PendingTasks(ctx context.Context) ([]*task.Task, error) {
	return r.tasks.ListPending(ctx)
}

// TerminateProcess force-stops an instance.
func (r *Runtime) TerminateProcess(ctx context.Context, id, reason string) error {
	return r.engine.TerminateProcess(ctx, id, reason)
}

// Process returns an instance snapshot.
func (r *Runtime) Process(ctx context.Context, id string) (*execution.Snapshot, error) {
	return r.engine.GetProcessInstance(ctx, id)
}

// Processes returns active instances.
func (r *Runtime) Processes(ctx context.Context) []*execution.Snapshot {
	return r.engine.ListActiveInstances(ctx)
}

// Progress returns activity counters of an instance.
func (r *Runtime) Progress(id string) (progress.Counters, error) {
	return r.engine.Progress(id)
}

// Cleanup archives a finished instance.
func (r *Runtime) Cleanup(ctx context.Context, id string) error {
	return r.engine.Cleanup(ctx, id)
}

// Start starts runtime
func (r *Runtime) Start(ctx context.Context) error {
	return r.engine.Start(ctx)
}

// Shutdown stops the engine and releases owned resources.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if err := r.engine.Shutdown(ctx); err != nil {
		return err
	}
	if r.close != nil {
		return r.close(ctx)
	}
	return nil
}
