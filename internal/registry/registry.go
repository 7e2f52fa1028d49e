// Package registry holds the static, per-entity-type table describing which
// payload fields get which variant specs. The table is fixed at construction;
// there is no hot reload.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// ComponentSpecs describes the media fields inside a named sub-structure.
// A repeatable component applies its field specs independently to every
// instance in the incoming sequence.
type ComponentSpecs struct {
	Repeatable bool                    `yaml:"repeatable"`
	Fields     map[string]variant.Spec `yaml:"fields"`
}

// EntitySpecs is the full variant configuration for one entity type.
type EntitySpecs struct {
	Fields     map[string]variant.Spec   `yaml:"fields"`
	Components map[string]ComponentSpecs `yaml:"components"`
}

// Empty reports whether the entity type has nothing configured.
func (e EntitySpecs) Empty() bool {
	return len(e.Fields) == 0 && len(e.Components) == 0
}

// Registry resolves entity types to their variant configuration.
type Registry struct {
	entities map[string]EntitySpecs
}

// New builds a registry from a table. Specs are normalized up front: defaults
// applied, and a spec without an explicit suffix takes its field name, which
// keeps suffixes unique within a field by construction.
func New(table map[string]EntitySpecs) *Registry {
	entities := make(map[string]EntitySpecs, len(table))
	for entityType, conf := range table {
		normalized := EntitySpecs{}
		if len(conf.Fields) > 0 {
			normalized.Fields = normalizeFields(conf.Fields)
		}
		if len(conf.Components) > 0 {
			normalized.Components = make(map[string]ComponentSpecs, len(conf.Components))
			for name, comp := range conf.Components {
				normalized.Components[name] = ComponentSpecs{
					Repeatable: comp.Repeatable,
					Fields:     normalizeFields(comp.Fields),
				}
			}
		}
		entities[entityType] = normalized
	}
	return &Registry{entities: entities}
}

func normalizeFields(fields map[string]variant.Spec) map[string]variant.Spec {
	out := make(map[string]variant.Spec, len(fields))
	for field, spec := range fields {
		if spec.Suffix == "" {
			spec.Suffix = field
		}
		out[field] = spec.Normalize()
	}
	return out
}

// SpecsFor returns the configuration for an entity type. Unconfigured types
// yield an empty spec set; callers treat that as a no-op.
func (r *Registry) SpecsFor(entityType string) EntitySpecs {
	return r.entities[entityType]
}

// EntityTypes lists the configured entity types.
func (r *Registry) EntityTypes() []string {
	types := make([]string, 0, len(r.entities))
	for entityType := range r.entities {
		types = append(types, entityType)
	}
	return types
}

type fileSchema struct {
	Entities map[string]EntitySpecs `yaml:"entities"`
}

// LoadFile reads a registry table from a YAML file:
//
//	entities:
//	  instructor:
//	    fields:
//	      avatar: {width: 500, height: 500, fit: cover, format: webp, quality: 80}
//	    components:
//	      gallery:
//	        repeatable: true
//	        fields:
//	          picture: {width: 800, height: 600}
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read formats file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse formats file: %w", err)
	}
	for entityType, conf := range schema.Entities {
		for field, spec := range conf.Fields {
			if spec.Width <= 0 || spec.Height <= 0 {
				return nil, fmt.Errorf("entity %q field %q: width and height are required", entityType, field)
			}
		}
		for name, comp := range conf.Components {
			for field, spec := range comp.Fields {
				if spec.Width <= 0 || spec.Height <= 0 {
					return nil, fmt.Errorf("entity %q component %q field %q: width and height are required", entityType, name, field)
				}
			}
		}
	}
	return New(schema.Entities), nil
}
