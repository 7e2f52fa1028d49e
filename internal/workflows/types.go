package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"

	"github.com/mediastack/image-variant-pipeline/internal/dbosruntime"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// WorkflowContext carries one run's request and identity.
type WorkflowContext struct {
	Ctx     context.Context
	Request variant.RegenerateRequest
	RunID   string
}

// WorkflowResult is the recorded outcome of a run. Error holds a message
// rather than an error value so DBOS can checkpoint it.
type WorkflowResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// Workflow is one registered job implementation.
type Workflow interface {
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)
	Name() string
}

// WorkflowRunner dispatches jobs to registered workflows, either inline or
// through the DBOS queue.
type WorkflowRunner struct {
	workflows   map[string]Workflow
	dbosRuntime *dbosruntime.Runtime
}

// NewWorkflowRunner creates a runner. When a DBOS runtime is present the
// dispatch function is registered with it; registration must happen before
// the runtime launches.
func NewWorkflowRunner(dbosRuntime *dbosruntime.Runtime) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflows:   make(map[string]Workflow),
		dbosRuntime: dbosRuntime,
	}

	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}

	return runner
}

// Register binds a workflow to a job type.
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Run executes a workflow synchronously, bypassing the queue.
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	workflow, ok := r.workflows[wctx.Request.Job]
	if !ok {
		return &WorkflowResult{Success: false, Error: ErrWorkflowNotFound.Error()}, ErrWorkflowNotFound
	}
	return workflow.Execute(wctx)
}

// RunAsync enqueues a workflow run via DBOS and returns its run ID.
func (r *WorkflowRunner) RunAsync(ctx context.Context, req variant.RegenerateRequest) (string, error) {
	if r.dbosRuntime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}

	// A unique workflow ID per submission; idempotency lives in the
	// engine's deterministic naming, not in the queue.
	workflowID := fmt.Sprintf("%s-%s-%s", req.Job, req.AssetID, uuid.New().String())

	handle, err := dbos.RunWorkflow[variant.RegenerateRequest, *WorkflowResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		return "", err
	}

	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the single DBOS workflow function; it dispatches to
// the registered workflow for the request's job type.
func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req variant.RegenerateRequest) (*WorkflowResult, error) {
	workflow, ok := r.workflows[req.Job]
	if !ok {
		return &WorkflowResult{Success: false, Error: ErrWorkflowNotFound.Error()}, ErrWorkflowNotFound
	}

	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return &WorkflowResult{Success: false, Error: err.Error()}, err
	}

	wctx := &WorkflowContext{
		Ctx:     dbosCtx,
		Request: req,
		RunID:   workflowID,
	}
	return workflow.Execute(wctx)
}
