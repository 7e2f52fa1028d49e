// Package runner embeds the durable regeneration pipeline into another Go
// application, without running the standalone worker binary.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/dbosruntime"
	"github.com/mediastack/image-variant-pipeline/internal/engine"
	"github.com/mediastack/image-variant-pipeline/internal/gateway"
	"github.com/mediastack/image-variant-pipeline/internal/workflows"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// Config holds the settings for an embedded pipeline runner.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string for workflow
	// checkpointing. Required.
	DatabaseURL string
	// AppName identifies the embedding application in the status tables.
	AppName string
	// QueueName selects the workflow queue. Defaults to "default".
	QueueName string
	// Concurrency is the number of workflows executed in parallel.
	Concurrency int
	// ApplicationVersion overrides the binary-hash version so several
	// binaries can share a queue.
	ApplicationVersion string

	// ContentAPIURL points at the content API serving assets. Required.
	ContentAPIURL string
	// UploadToken is sent as a bearer token when set.
	UploadToken string
	// LocalMediaDir, when set, serves relative asset URLs from disk
	// before falling back to the content API.
	LocalMediaDir string

	// Logger receives pipeline logs. The zero value discards them.
	Logger zerolog.Logger
}

// Runner executes regeneration workflows inside the embedding process.
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// New initializes the runtime, registers the regeneration workflow, and
// launches queue processing.
func New(cfg Config) (*Runner, error) {
	if cfg.ContentAPIURL == "" {
		return nil, fmt.Errorf("content API URL is required")
	}

	runtime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize durable runtime: %w", err)
	}

	workflowRunner := workflows.NewWorkflowRunner(runtime)

	gw := gateway.NewHTTPGateway(cfg.ContentAPIURL, cfg.UploadToken)
	var fetcher gateway.ByteFetcher = gw
	if cfg.LocalMediaDir != "" {
		local, err := gateway.NewLocalFetcher(cfg.LocalMediaDir, gw)
		if err != nil {
			return nil, fmt.Errorf("failed to open local media directory: %w", err)
		}
		fetcher = local
	}

	generator := engine.New(gw, fetcher, gw, cfg.Logger)
	workflowRunner.Register(variant.JobRegenerate, workflows.NewRegenerateWorkflow(generator, gw, cfg.Logger))

	// Launch must follow workflow registration.
	if err := runtime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch durable runtime: %w", err)
	}

	return &Runner{
		runtime: runtime,
		runner:  workflowRunner,
	}, nil
}

// Regenerate enqueues variant regeneration for an asset and returns the
// run ID.
func (r *Runner) Regenerate(ctx context.Context, assetID string, specs []variant.Spec) (string, error) {
	for i := range specs {
		specs[i] = specs[i].Normalize()
	}
	return r.runner.RunAsync(ctx, variant.RegenerateRequest{
		AssetID: assetID,
		Job:     variant.JobRegenerate,
		Specs:   specs,
	})
}

// RunStatus describes the state of an enqueued run. Timestamps are epoch
// milliseconds.
type RunStatus struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Status reports the state of a previously enqueued run. The second return
// value is false when no run exists for the ID.
func (r *Runner) Status(ctx context.Context, runID string) (*RunStatus, bool, error) {
	s, found, err := r.runtime.GetRunStatus(ctx, runID)
	if err != nil || !found {
		return nil, found, err
	}
	return &RunStatus{
		RunID:     s.RunID,
		Status:    s.Status,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, true, nil
}

// Shutdown stops queue processing and releases the runtime.
func (r *Runner) Shutdown(timeoutSeconds int) {
	if r.runtime != nil {
		r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
