// Package orchestrator intercepts entity create/update payloads, generates
// the configured variants for every referenced media asset, and merges the
// results back into the payload and the assets' manifests before the entity
// write proceeds.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mediastack/image-variant-pipeline/internal/engine"
	"github.com/mediastack/image-variant-pipeline/internal/gateway"
	"github.com/mediastack/image-variant-pipeline/internal/mediaref"
	"github.com/mediastack/image-variant-pipeline/internal/metrics"
	"github.com/mediastack/image-variant-pipeline/internal/registry"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// OverlayField is the payload key the orchestrator merges variant overlays
// into. The read model exposes the same key.
const OverlayField = "customFormats"

// itemsKey holds the positional overlay sequence of a repeatable component.
const itemsKey = "items"

// Generator produces one variant for a source asset.
type Generator interface {
	Generate(ctx context.Context, sourceID string, spec variant.Spec) (variant.Descriptor, error)
}

// AssetStore is the slice of the gateway the orchestrator needs to persist
// manifests.
type AssetStore interface {
	gateway.AssetFinder
	gateway.AssetAnnotator
}

// Orchestrator runs the write-path pipeline for one deployment's registry.
type Orchestrator struct {
	registry    *registry.Registry
	generator   Generator
	store       AssetStore
	logger      zerolog.Logger
	concurrency int
}

// New creates an orchestrator. concurrency bounds parallel generations within
// one mutation; zero or negative means 4.
func New(reg *registry.Registry, gen Generator, store AssetStore, logger zerolog.Logger, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		registry:    reg,
		generator:   gen,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
	}
}

// OnBeforeCreate processes a create payload in place.
func (o *Orchestrator) OnBeforeCreate(ctx context.Context, entityType string, payload map[string]any) error {
	return o.process(ctx, entityType, payload)
}

// OnBeforeUpdate processes an update payload in place. Re-invocation with the
// same payload converges on the same overlay and manifest state.
func (o *Orchestrator) OnBeforeUpdate(ctx context.Context, entityType string, payload map[string]any) error {
	return o.process(ctx, entityType, payload)
}

// unit is one independent generation: a (field, source asset, spec) triple
// located either at the top level or inside a component instance.
type unit struct {
	component string
	index     int // instance index for repeatable components, -1 otherwise
	field     string
	sourceID  string
	spec      variant.Spec
}

func (u unit) path() string {
	switch {
	case u.component == "":
		return u.field
	case u.index < 0:
		return u.component + "." + u.field
	default:
		return fmt.Sprintf("%s[%d].%s", u.component, u.index, u.field)
	}
}

type outcome struct {
	unit       unit
	descriptor variant.Descriptor
	err        error
}

func (o *Orchestrator) process(ctx context.Context, entityType string, payload map[string]any) error {
	if payload == nil {
		return nil
	}
	specs := o.registry.SpecsFor(entityType)
	if specs.Empty() {
		return nil
	}

	units := collectUnits(specs, payload)
	if len(units) == 0 {
		return nil
	}

	outcomes := o.generateAll(ctx, entityType, units)

	// Total gateway outage is the one failure that must not degrade
	// silently: every attempted slot failing with an unreachable store means
	// the operator has to hear about it.
	failed := 0
	unavailable := 0
	for _, out := range outcomes {
		if out.err != nil {
			failed++
			if engine.FailureKind(out.err) == "gateway_unavailable" {
				unavailable++
			}
		}
	}
	if failed == len(outcomes) && unavailable == failed {
		return fmt.Errorf("%w: all %d variant generations failed", engine.ErrGatewayUnavailable, failed)
	}

	o.mergeOverlay(payload, specs, units, outcomes)
	o.persistManifests(ctx, entityType, outcomes)
	return nil
}

// collectUnits walks the payload against the entity's spec set and resolves
// every media reference into a generation unit. Fields with no resolvable
// reference are skipped; that is the normal case for partial updates.
func collectUnits(specs registry.EntitySpecs, payload map[string]any) []unit {
	var units []unit

	for field, spec := range specs.Fields {
		if id, ok := mediaref.Resolve(payload[field]); ok {
			units = append(units, unit{index: -1, field: field, sourceID: id, spec: spec})
		}
	}

	for name, comp := range specs.Components {
		node, present := payload[name]
		if !present || node == nil {
			continue
		}
		if comp.Repeatable {
			instances, ok := node.([]any)
			if !ok {
				continue
			}
			for i, item := range instances {
				instance, ok := item.(map[string]any)
				if !ok {
					continue
				}
				for field, spec := range comp.Fields {
					if id, ok := mediaref.Resolve(instance[field]); ok {
						units = append(units, unit{component: name, index: i, field: field, sourceID: id, spec: spec})
					}
				}
			}
		} else {
			instance, ok := node.(map[string]any)
			if !ok {
				continue
			}
			for field, spec := range comp.Fields {
				if id, ok := mediaref.Resolve(instance[field]); ok {
					units = append(units, unit{component: name, index: -1, field: field, sourceID: id, spec: spec})
				}
			}
		}
	}

	return units
}

// generateAll fans out the units concurrently. Every failure is caught,
// logged and recorded; no failure aborts a sibling.
func (o *Orchestrator) generateAll(ctx context.Context, entityType string, units []unit) []outcome {
	outcomes := make([]outcome, len(units))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, u := range units {
		g.Go(func() error {
			d, err := o.generator.Generate(gctx, u.sourceID, u.spec)
			if err != nil {
				kind := engine.FailureKind(err)
				o.logger.Error().
					Str("entity_type", entityType).
					Str("field", u.path()).
					Str("source_id", u.sourceID).
					Str("kind", kind).
					Err(err).
					Msg("variant generation failed")
				metrics.VariantFailures.WithLabelValues(kind).Inc()
			}
			mu.Lock()
			outcomes[i] = outcome{unit: u, descriptor: d, err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// mergeOverlay folds successful descriptors into the payload's overlay field,
// keyed by suffix, never discarding entries a prior mutation wrote. Repeatable
// components keep index alignment with explicit null placeholders.
func (o *Orchestrator) mergeOverlay(payload map[string]any, specs registry.EntitySpecs, units []unit, outcomes []outcome) {
	custom, _ := payload[OverlayField].(map[string]any)
	if custom == nil {
		custom = make(map[string]any)
	}

	for _, out := range outcomes {
		if out.err != nil || out.unit.component != "" {
			continue
		}
		mergeDescriptor(subMap(custom, out.unit.field), out.descriptor)
	}

	for name, comp := range specs.Components {
		if comp.Repeatable {
			o.mergeRepeatable(custom, name, payload[name], outcomes)
			continue
		}
		for _, out := range outcomes {
			if out.err != nil || out.unit.component != name {
				continue
			}
			compStore := subMap(custom, name)
			mergeDescriptor(subMap(compStore, out.unit.field), out.descriptor)
		}
	}

	if len(custom) > 0 {
		payload[OverlayField] = custom
	}
}

// mergeRepeatable builds the positional overlay sequence for one repeatable
// component. Instance i of the input maps to slot i of the sequence; an
// instance that produced nothing gets an explicit null so later consumers can
// zip the two sequences without drift.
func (o *Orchestrator) mergeRepeatable(custom map[string]any, name string, node any, outcomes []outcome) {
	instances, ok := node.([]any)
	if !ok || len(instances) == 0 {
		return
	}

	items := make([]any, len(instances))
	hasAny := false
	for _, out := range outcomes {
		if out.err != nil || out.unit.component != name || out.unit.index < 0 || out.unit.index >= len(items) {
			continue
		}
		slot, ok := items[out.unit.index].(map[string]any)
		if !ok {
			slot = make(map[string]any)
			items[out.unit.index] = slot
		}
		mergeDescriptor(subMap(slot, out.unit.field), out.descriptor)
		hasAny = true
	}
	if !hasAny {
		return
	}

	compStore := subMap(custom, name)
	compStore[itemsKey] = items
}

// persistManifests merges the new descriptors into each source asset's
// manifest with a read-modify-write on its caption field. Persistence
// failures degrade to a log line; the owning entity write still proceeds.
func (o *Orchestrator) persistManifests(ctx context.Context, entityType string, outcomes []outcome) {
	bySource := make(map[string][]variant.Descriptor)
	for _, out := range outcomes {
		if out.err != nil {
			continue
		}
		bySource[out.unit.sourceID] = append(bySource[out.unit.sourceID], out.descriptor)
	}

	for sourceID, descriptors := range bySource {
		if err := o.persistManifest(ctx, sourceID, descriptors); err != nil {
			o.logger.Error().
				Str("entity_type", entityType).
				Str("source_id", sourceID).
				Err(err).
				Msg("manifest persistence failed")
		}
	}
}

func (o *Orchestrator) persistManifest(ctx context.Context, sourceID string, descriptors []variant.Descriptor) error {
	asset, err := o.store.FindAssetByID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("find asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("asset %s disappeared before manifest write", sourceID)
	}

	manifest, _ := variant.DecodeAssetManifest(*asset)
	manifest.Processed = true
	manifest.ProcessedAt = time.Now().UTC()
	manifest.MergeAll(descriptors)

	encoded, err := variant.EncodeManifest(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := o.store.UpdateAssetCaption(ctx, sourceID, encoded); err != nil {
		return fmt.Errorf("update caption: %w", err)
	}
	return nil
}

// subMap returns parent[key] as a map, creating it when missing or when the
// existing value has another type.
func subMap(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	parent[key] = m
	return m
}

// mergeDescriptor writes d's overlay entry under its suffix.
func mergeDescriptor(store map[string]any, d variant.Descriptor) {
	store[d.Suffix] = map[string]any{
		"url":    d.URL,
		"width":  d.Width,
		"height": d.Height,
		"format": d.Format,
	}
}
