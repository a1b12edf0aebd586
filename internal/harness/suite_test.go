package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSuite(t *testing.T) {
	suite, err := LoadSuite(filepath.Join("testdata", "suites", "hopper.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "hopper-smoke", suite.Name)
	assert.Equal(t, "HopperBulletEnv-v0", suite.EnvID)
	assert.Equal(t, filepath.Join("testdata", "suites", "..", "..", "..", "..", "specs", "hopper.cue"), suite.Spec)
	require.Len(t, suite.Checks, 9)

	assert.Equal(t, "info", suite.Checks[0].Name, "name defaults to type")
	assert.Equal(t, 3, suite.Checks[1].Episodes)
	require.NotNil(t, suite.Checks[1].Seed)
	assert.Equal(t, int64(0), *suite.Checks[1].Seed)
	assert.Equal(t, "two-workers", suite.Checks[6].Name)
	assert.True(t, suite.Checks[6].VerifyReference)
	assert.Equal(t, filepath.Join("testdata", "suites", "out", "hopper.gif"), suite.Checks[7].Output)
	assert.Equal(t, CheckEnvChecker, suite.Checks[8].Name)
	require.NotNil(t, suite.Checks[8].Seed)
	assert.Equal(t, int64(7), *suite.Checks[8].Seed)
}

func TestLoadSuite_UnknownField(t *testing.T) {
	_, err := LoadSuite(filepath.Join("testdata", "suites", "unknown_field.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "episodes_count")
}

func TestLoadSuite_MissingSpec(t *testing.T) {
	_, err := LoadSuite(filepath.Join("testdata", "suites", "missing_spec.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec file not found")
}

func TestLoadSuite_MissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join("testdata", "suites", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read suite file")
}

func TestParseSuite_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "checks:\n  - type: info\n",
			want: "name is required",
		},
		{
			name: "no checks",
			yaml: "name: empty\n",
			want: "checks list is required",
		},
		{
			name: "missing type",
			yaml: "name: s\nchecks:\n  - name: x\n",
			want: "checks[0]: type is required",
		},
		{
			name: "unknown type",
			yaml: "name: s\nchecks:\n  - type: telemetry\n",
			want: `unknown check type "telemetry"`,
		},
		{
			name: "duplicate names",
			yaml: "name: s\nchecks:\n  - type: info\n  - type: info\n",
			want: `name "info" already used by checks[0]`,
		},
		{
			name: "negative episodes",
			yaml: "name: s\nchecks:\n  - type: episodes\n    episodes: -1\n",
			want: "episodes must be non-negative",
		},
		{
			name: "workers outside parallel",
			yaml: "name: s\nchecks:\n  - type: episodes\n    workers: 2\n",
			want: "only apply to parallel checks",
		},
		{
			name: "fps outside capture",
			yaml: "name: s\nchecks:\n  - type: functional\n    fps: 30\n",
			want: "only apply to capture checks",
		},
		{
			name: "expect_terminated outside zero_action",
			yaml: "name: s\nchecks:\n  - type: episodes\n    expect_terminated: false\n",
			want: "expect_terminated only applies to zero_action checks",
		},
		{
			name: "malformed yaml",
			yaml: "name: [\n",
			want: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSuite([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSuite_KeepsRelativePaths(t *testing.T) {
	suite, err := ParseSuite([]byte("name: s\nspec: specs/hopper.cue\nchecks:\n  - type: capture\n    output: out.gif\n"))
	require.NoError(t, err)
	assert.Equal(t, "specs/hopper.cue", suite.Spec)
	assert.Equal(t, "out.gif", suite.Checks[0].Output)
}
