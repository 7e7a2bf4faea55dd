// Package testutil provides helpers for CLI tests: captured renderers
// and throwaway Strata projects.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/millbrook-data/strata/internal/cli/output"
)

// testGraph is a minimal runnable graph document: one seeding
// operation and one table reading from it.
const testGraph = `{
  "actions": [
    {
      "target": {"schema": "analytics", "name": "seed_customers"},
      "kind": "operation",
      "operation": {
        "queries": [
          "CREATE OR REPLACE TABLE raw_customers AS SELECT * FROM (VALUES (1, 'Alice'), (2, 'Bob')) AS t(id, name)"
        ]
      }
    },
    {
      "target": {"schema": "analytics", "name": "stg_customers"},
      "kind": "table",
      "dependencies": [{"target": {"schema": "analytics", "name": "seed_customers"}}],
      "table": {
        "kind": "table",
        "query": "SELECT id AS customer_id, name AS customer_name FROM raw_customers"
      }
    }
  ]
}`

const testConfig = `graph: target/graph.json
state_path: .strata/history.db
environment: dev
target:
  type: duckdb
`

// SetupTestProject creates a temporary project with a strata.yaml and a
// small compiled graph document, and returns its root directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "target"), 0750); err != nil {
		t.Fatalf("failed to create target directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "strata.yaml"), []byte(testConfig), 0644); err != nil {
		t.Fatalf("failed to create strata.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "target", "graph.json"), []byte(testGraph), 0644); err != nil {
		t.Fatalf("failed to create graph.json: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a test renderer with the given mode and TTY
// state, capturing output in buffers.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a test renderer in text mode without a
// TTY, so styles pass through unstyled and output is deterministic.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, false)
}

// NewTestRendererTTY creates a test renderer in text mode with a
// simulated TTY.
func NewTestRendererTTY() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererJSON creates a test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the captured stdout as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the captured stderr as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
