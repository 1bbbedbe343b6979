package meta

import (
	"context"
	"embed"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	_ "github.com/viant/afs/embed"
)

//go:embed testdata/*
var testFS embed.FS

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("A", "1")
	t.Setenv("B", "2")
	testCases := []struct {
		description string
		input       string
		expect      string
	}{
		{description: "plain", input: "just text", expect: "just text"},
		{description: "single", input: "value is ${env.FOO}", expect: "value is bar"},
		{description: "multiple", input: "${env.A}-${env.B}-${env.A}", expect: "1-2-1"},
		{description: "unset", input: "unset=${env.PROCFLOW_NOT_SET}-end", expect: "unset=-end"},
		{description: "unterminated", input: "start ${env.A and ${env.PROCFLOW_NOT_SET} end", expect: "start ${env.A and  end"},
		{description: "empty key", input: "oops ${env.} done", expect: "oops  done"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			assert.Equal(t, testCase.expect, ExpandEnv(testCase.input))
		})
	}
}

func TestService_Load(t *testing.T) {
	t.Setenv("PROCFLOW_TEST_NAME", "orders")
	service := New(afs.New(), "embed:///testdata", &testFS)
	settings := struct {
		Name  string `yaml:"name"`
		Limit int    `yaml:"limit"`
	}{}
	require.NoError(t, service.Load(context.Background(), "settings.yaml", &settings))
	assert.Equal(t, "orders", settings.Name)
	assert.Equal(t, 10, settings.Limit)

	assert.Error(t, service.Load(context.Background(), "missing.yaml", &settings))
}
