package registry

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/latticehq/lattice/internal/graph"
)

// catalogueFile is the YAML document shape for an edge type catalogue.
type catalogueFile struct {
	EdgeTypes []graph.EdgeType `yaml:"edge_types"`
}

// Load reads a YAML catalogue from r and returns a validated Registry.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalogue: %w", err)
	}
	if len(file.EdgeTypes) == 0 {
		return nil, fmt.Errorf("catalogue has no edge_types entries")
	}

	reg, err := New(file.EdgeTypes)
	if err != nil {
		return nil, fmt.Errorf("validating catalogue: %w", err)
	}
	return reg, nil
}

// LoadFile reads and validates the YAML catalogue at path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalogue: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}
