package tool

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// ManifestVersionV1 is the current manifest document version.
const ManifestVersionV1 = "1.0"

// Manifest describes every registered tool without any executable parts.
type Manifest struct {
	ManifestVersion string         `json:"manifest_version"`
	Tools           []ManifestTool `json:"tools"`
}

// ManifestTool is the serializable description of one tool.
type ManifestTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// NewManifest returns an empty v1 manifest.
func NewManifest() Manifest {
	return Manifest{
		ManifestVersion: ManifestVersionV1,
		Tools:           make([]ManifestTool, 0),
	}
}

// Names returns the tool names in manifest order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Tools))
	for _, t := range m.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Manifest computes the manifest from the current registry contents.
// It is recomputed on every call and never cached.
func (r *Registry) Manifest() Manifest {
	m := NewManifest()
	for _, def := range r.All() {
		m.Tools = append(m.Tools, ManifestTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema.Describe(),
		})
	}
	return m
}
