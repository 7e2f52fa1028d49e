package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/engine"
	"github.com/mediastack/image-variant-pipeline/internal/gateway"
	"github.com/mediastack/image-variant-pipeline/internal/metrics"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// Generator produces one variant for a source asset.
type Generator interface {
	Generate(ctx context.Context, sourceID string, spec variant.Spec) (variant.Descriptor, error)
}

// AssetStore is the gateway slice the workflow needs to persist manifests.
type AssetStore interface {
	gateway.AssetFinder
	gateway.AssetAnnotator
}

// RegenerateWorkflow rebuilds the requested variants for one asset and
// merges them into its manifest. Used for backfills after a format table
// change and for repairing assets whose generation partially failed during a
// mutation.
type RegenerateWorkflow struct {
	generator Generator
	store     AssetStore
	logger    zerolog.Logger
}

// NewRegenerateWorkflow creates the workflow.
func NewRegenerateWorkflow(generator Generator, store AssetStore, logger zerolog.Logger) *RegenerateWorkflow {
	return &RegenerateWorkflow{
		generator: generator,
		store:     store,
		logger:    logger,
	}
}

// Name returns the workflow name.
func (w *RegenerateWorkflow) Name() string {
	return "RegenerateWorkflow"
}

// Execute runs one regeneration. Per-spec failures degrade to skipped slots;
// the run fails as a whole only when the request is invalid or the asset
// store is unreachable for every spec.
func (w *RegenerateWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	logger := w.logger.With().Str("run_id", wctx.RunID).Str("asset_id", wctx.Request.AssetID).Logger()
	logger.Info().Int("specs", len(wctx.Request.Specs)).Msg("starting regeneration")

	if err := validateRequest(&wctx.Request); err != nil {
		metrics.RegenerationRuns.WithLabelValues("invalid").Inc()
		return &WorkflowResult{Success: false, Error: err.Error()}, err
	}

	var descriptors []variant.Descriptor
	unavailable := 0
	for _, spec := range wctx.Request.Specs {
		d, err := w.generator.Generate(wctx.Ctx, wctx.Request.AssetID, spec)
		if err != nil {
			kind := engine.FailureKind(err)
			logger.Error().Str("suffix", spec.Suffix).Str("kind", kind).Err(err).Msg("regeneration slot failed")
			metrics.VariantFailures.WithLabelValues(kind).Inc()
			if errors.Is(err, engine.ErrGatewayUnavailable) {
				unavailable++
			}
			continue
		}
		descriptors = append(descriptors, d)
	}

	if len(descriptors) == 0 && unavailable == len(wctx.Request.Specs) {
		err := fmt.Errorf("%w: all %d regenerations failed", engine.ErrGatewayUnavailable, unavailable)
		metrics.RegenerationRuns.WithLabelValues("unavailable").Inc()
		return &WorkflowResult{Success: false, Error: err.Error()}, err
	}

	if len(descriptors) > 0 {
		if err := w.persistManifest(wctx.Ctx, wctx.Request.AssetID, descriptors); err != nil {
			logger.Error().Err(err).Msg("manifest persistence failed")
			metrics.RegenerationRuns.WithLabelValues("persist_failed").Inc()
			return &WorkflowResult{Success: false, Error: err.Error()}, err
		}
	}

	logger.Info().Int("generated", len(descriptors)).Int("skipped", len(wctx.Request.Specs)-len(descriptors)).Msg("regeneration completed")
	metrics.RegenerationRuns.WithLabelValues("success").Inc()

	return &WorkflowResult{
		Success: true,
		Outputs: map[string]any{
			"asset_id":  wctx.Request.AssetID,
			"generated": len(descriptors),
			"skipped":   len(wctx.Request.Specs) - len(descriptors),
		},
	}, nil
}

func (w *RegenerateWorkflow) persistManifest(ctx context.Context, assetID string, descriptors []variant.Descriptor) error {
	asset, err := w.store.FindAssetByID(ctx, assetID)
	if err != nil {
		return fmt.Errorf("find asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("asset %s not found for manifest write", assetID)
	}

	manifest, _ := variant.DecodeAssetManifest(*asset)
	manifest.Processed = true
	manifest.ProcessedAt = time.Now().UTC()
	manifest.MergeAll(descriptors)

	encoded, err := variant.EncodeManifest(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return w.store.UpdateAssetCaption(ctx, assetID, encoded)
}

func validateRequest(req *variant.RegenerateRequest) error {
	if req.AssetID == "" {
		return fmt.Errorf("%w: asset_id is required", ErrInvalidRequest)
	}
	if len(req.Specs) == 0 {
		return fmt.Errorf("%w: at least one spec is required", ErrInvalidRequest)
	}
	for _, spec := range req.Specs {
		if spec.Suffix == "" {
			return fmt.Errorf("%w: spec suffix is required", ErrInvalidRequest)
		}
		if spec.Width <= 0 || spec.Height <= 0 {
			return fmt.Errorf("%w: spec %q needs positive dimensions", ErrInvalidRequest, spec.Suffix)
		}
	}
	return nil
}
