package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/mediastack/image-variant-pipeline/internal/dbosruntime"
	"github.com/mediastack/image-variant-pipeline/internal/workflows"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// Client enqueues regeneration runs without executing them. Workers must be
// running separately to drain the queue.
type Client struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// NewClient connects to the queue database in enqueue-only mode. Only the
// DatabaseURL, AppName, QueueName, and ApplicationVersion fields of cfg are
// used.
func NewClient(cfg Config) (*Client, error) {
	runtime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize durable runtime: %w", err)
	}

	// No job registration: the dispatch entry point is registered so runs
	// can be enqueued, but nothing here executes them.
	workflowRunner := workflows.NewWorkflowRunner(runtime)

	if err := runtime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch durable runtime: %w", err)
	}

	return &Client{
		runtime: runtime,
		runner:  workflowRunner,
	}, nil
}

// Regenerate enqueues variant regeneration for an asset and returns the
// run ID.
func (c *Client) Regenerate(ctx context.Context, assetID string, specs []variant.Spec) (string, error) {
	for i := range specs {
		specs[i] = specs[i].Normalize()
	}
	return c.runner.RunAsync(ctx, variant.RegenerateRequest{
		AssetID: assetID,
		Job:     variant.JobRegenerate,
		Specs:   specs,
	})
}

// Shutdown releases the queue connection.
func (c *Client) Shutdown(timeoutSeconds int) {
	if c.runtime != nil {
		c.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
