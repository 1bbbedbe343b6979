package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/procflow/runtime/execution"
)

const definition = "../../testdata/approval.yaml"

func TestExecute_Validate(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, execute([]string{"validate", definition}, out))
	assert.Contains(t, out.String(), "approval@1: valid")

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("id: broken\nstart: missing\n"), 0o644))
	err := execute([]string{"validate", broken}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid workflow broken")
}

func TestExecute_Run(t *testing.T) {
	testCases := []struct {
		description string
		args        []string
		expect      execution.Status
		approved    interface{}
	}{
		{
			description: "no approval needed",
			args:        []string{"run", definition, "--input", "amount=5"},
			expect:      execution.StatusCompleted,
		},
		{
			description: "auto approved",
			args:        []string{"run", definition, "--input", "amount=500", "--approve"},
			expect:      execution.StatusCompleted,
			approved:    true,
		},
		{
			description: "left waiting",
			args:        []string{"run", definition, "-i", "amount=500", "--timeout", "2s"},
			expect:      execution.StatusWaiting,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			out := &bytes.Buffer{}
			require.NoError(t, execute(testCase.args, out))
			snapshot := &execution.Snapshot{}
			require.NoError(t, json.Unmarshal(out.Bytes(), snapshot))
			assert.Equal(t, testCase.expect, snapshot.Status)
			assert.Equal(t, testCase.approved, snapshot.Variables["approved"])
		})
	}
}
