package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadGraphFile reads a compiled graph document from path. The format
// is chosen by extension: .json decodes as JSON, .yaml/.yml as YAML.
// The returned graph is decoded but not yet normalized.
func LoadGraphFile(path string) (*Graph, error) {
	var decode func([]byte) (*Graph, error)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		decode = DecodeGraphJSON
	case ".yaml", ".yml":
		decode = DecodeGraphYAML
	default:
		return nil, fmt.Errorf("unsupported graph file extension %q: expected .json, .yaml or .yml", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	return decode(data)
}

// DecodeGraphJSON decodes a compiled graph document from JSON.
func DecodeGraphJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &g, nil
}

// DecodeGraphYAML decodes a compiled graph document from YAML.
func DecodeGraphYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &g, nil
}
