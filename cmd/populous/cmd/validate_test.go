package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlueprintFixture(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "bp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunValidateAcceptsWellFormedBlueprint(t *testing.T) {
	path := writeBlueprintFixture(t, `
items:
  - name: users
    table: users
    count: 3
    fields:
      name:
        generator: Value
        value: alice
`)

	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	require.NoError(t, runValidate(validateCmd, []string{path}))
	assert.Contains(t, buf.String(), "1 items")
}

func TestRunValidateRejectsUnknownItemKey(t *testing.T) {
	path := writeBlueprintFixture(t, "items:\n  - name: users\n    table: users\n    bogus: 1\n")

	err := runValidate(validateCmd, []string{path})
	assert.Error(t, err)
}

func TestRunValidateRejectsCycle(t *testing.T) {
	path := writeBlueprintFixture(t, `
items:
  - name: a
    table: a
    count:
      number: 1
      by: b
  - name: b
    table: b
    count:
      number: 1
      by: a
`)

	err := runValidate(validateCmd, []string{path})
	assert.Error(t, err)
}
