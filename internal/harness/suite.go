package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Suite is a list of diagnostic checks run against one environment.
type Suite struct {
	// Name identifies the suite in reports and run history.
	Name string `yaml:"name"`

	// Description explains what the suite validates.
	Description string `yaml:"description"`

	// Spec is an optional CUE contract file, relative to the suite file.
	Spec string `yaml:"spec,omitempty"`

	// EnvID selects the environment in Spec. May be empty when Spec declares
	// exactly one environment.
	EnvID string `yaml:"env_id,omitempty"`

	// Decompose requests reward-decomposing handles for every check.
	Decompose bool `yaml:"decompose,omitempty"`

	Checks []Check `yaml:"checks"`
}

// Check configures one diagnostic. Fields not used by a check type must be
// left empty.
type Check struct {
	Name string `yaml:"name"`

	// Type is one of the Check* constants.
	Type string `yaml:"type"`

	// Rollout parameters (episodes, reward_components, observations,
	// zero_action, capture).
	Episodes   int     `yaml:"episodes,omitempty"`
	Seed       *int64  `yaml:"seed,omitempty"`
	MaxSteps   int     `yaml:"max_steps,omitempty"`
	TraceLimit int     `yaml:"trace_limit,omitempty"`
	Policy     string  `yaml:"policy,omitempty"`
	Tolerance  float64 `yaml:"tolerance,omitempty"`

	// ExpectTerminated (zero_action) requires a termination before MaxSteps.
	// Defaults to true.
	ExpectTerminated *bool `yaml:"expect_terminated,omitempty"`

	// Parallel parameters.
	Workers         int     `yaml:"workers,omitempty"`
	Seeds           []int64 `yaml:"seeds,omitempty"`
	Rounds          int     `yaml:"rounds,omitempty"`
	VerifyReference bool    `yaml:"verify_reference,omitempty"`

	// Capture parameters. Output is relative to the suite file.
	Duration float64 `yaml:"duration,omitempty"`
	FPS      int     `yaml:"fps,omitempty"`
	Output   string  `yaml:"output,omitempty"`
}

// Check types.
const (
	CheckInfo             = "info"
	CheckEpisodes         = "episodes"
	CheckRewardComponents = "reward_components"
	CheckObservations     = "observations"
	CheckZeroAction       = "zero_action"
	CheckFunctional       = "functional"
	CheckEnvChecker       = "env_checker"
	CheckParallel         = "parallel"
	CheckCapture          = "capture"
)

var checkTypes = map[string]bool{
	CheckInfo:             true,
	CheckEpisodes:         true,
	CheckRewardComponents: true,
	CheckObservations:     true,
	CheckZeroAction:       true,
	CheckFunctional:       true,
	CheckEnvChecker:       true,
	CheckParallel:         true,
	CheckCapture:          true,
}

// LoadSuite reads and validates a suite YAML file. Unknown fields are
// rejected. Relative spec and output paths are resolved against the suite
// file's directory.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	suite, err := ParseSuite(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	if suite.Spec != "" && !filepath.IsAbs(suite.Spec) {
		suite.Spec = filepath.Join(base, suite.Spec)
	}
	for i := range suite.Checks {
		if out := suite.Checks[i].Output; out != "" && !filepath.IsAbs(out) {
			suite.Checks[i].Output = filepath.Join(base, out)
		}
	}
	if suite.Spec != "" {
		if _, err := os.Stat(suite.Spec); err != nil {
			return nil, fmt.Errorf("invalid suite: spec file not found: %s", suite.Spec)
		}
	}
	return suite, nil
}

// ParseSuite decodes and validates suite YAML. Paths are left as written.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateSuite(&suite); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &suite, nil
}

func validateSuite(s *Suite) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Checks) == 0 {
		return fmt.Errorf("checks list is required and must be non-empty")
	}

	names := make(map[string]int, len(s.Checks))
	for i := range s.Checks {
		c := &s.Checks[i]
		if c.Type == "" {
			return fmt.Errorf("checks[%d]: type is required", i)
		}
		if !checkTypes[c.Type] {
			return fmt.Errorf("checks[%d]: unknown check type %q", i, c.Type)
		}
		if c.Name == "" {
			c.Name = c.Type
		}
		if j, ok := names[c.Name]; ok {
			return fmt.Errorf("checks[%d]: name %q already used by checks[%d]", i, c.Name, j)
		}
		names[c.Name] = i

		if err := validateCheck(i, c); err != nil {
			return err
		}
	}
	return nil
}

func validateCheck(i int, c *Check) error {
	switch {
	case c.Episodes < 0:
		return fmt.Errorf("checks[%d]: episodes must be non-negative", i)
	case c.MaxSteps < 0:
		return fmt.Errorf("checks[%d]: max_steps must be non-negative", i)
	case c.TraceLimit < 0:
		return fmt.Errorf("checks[%d]: trace_limit must be non-negative", i)
	case c.Tolerance < 0:
		return fmt.Errorf("checks[%d]: tolerance must be non-negative", i)
	case c.Workers < 0:
		return fmt.Errorf("checks[%d]: workers must be non-negative", i)
	case c.Rounds < 0:
		return fmt.Errorf("checks[%d]: rounds must be non-negative", i)
	case c.Duration < 0:
		return fmt.Errorf("checks[%d]: duration must be non-negative", i)
	case c.FPS < 0:
		return fmt.Errorf("checks[%d]: fps must be non-negative", i)
	}

	if c.Type != CheckParallel && (c.Workers != 0 || len(c.Seeds) != 0 || c.Rounds != 0 || c.VerifyReference) {
		return fmt.Errorf("checks[%d]: workers, seeds, rounds and verify_reference only apply to parallel checks", i)
	}
	if c.Type != CheckCapture && (c.Duration != 0 || c.FPS != 0 || c.Output != "") {
		return fmt.Errorf("checks[%d]: duration, fps and output only apply to capture checks", i)
	}
	if c.Type != CheckZeroAction && c.ExpectTerminated != nil {
		return fmt.Errorf("checks[%d]: expect_terminated only applies to zero_action checks", i)
	}
	return nil
}
