package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/envprobe/internal/harness"
	"github.com/roach88/envprobe/internal/testutil"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// createTestStore creates a store in a temp dir with fixed IDs and clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDGenerator(testutil.NewFixedIDGenerator("run")),
		WithClock(func() time.Time { return testTime }),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResult builds a two-check result.
func createTestResult(suite string, pass bool) *harness.Result {
	r := harness.NewResult(suite, "HopperBulletEnv-v0")
	status := harness.StatusPass
	if !pass {
		status = harness.StatusMismatch
	}
	r.AddCheck(harness.CheckResult{
		Name:       "info",
		Type:       harness.CheckInfo,
		Status:     harness.StatusPass,
		Properties: []harness.Property{{Name: "spec is structurally valid", Status: harness.StatusPass}},
		Details:    []harness.Detail{{Key: "action_dim", Value: "3"}},
	})
	r.AddCheck(harness.CheckResult{
		Name:       "zero_action",
		Type:       harness.CheckZeroAction,
		Status:     status,
		Properties: []harness.Property{{Name: "terminated before max_steps", Status: status, Detail: "after 17 steps"}},
	})
	return r
}
