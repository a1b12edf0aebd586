package inspect

import (
	"fmt"
	"math"

	"github.com/roach88/envprobe/internal/rollout"
)

// DefaultTolerance bounds |sum(components) - reward|.
const DefaultTolerance = 1e-6

// CheckRewardComponents names the reward decomposition report.
const CheckRewardComponents = "reward_components"

// ComponentRow is the decomposition of one step.
type ComponentRow struct {
	Step       int       `json:"step"`
	Reward     float64   `json:"reward"`
	Components []float64 `json:"components"`
	Sum        float64   `json:"sum"`
	Delta      float64   `json:"delta"`
}

// Rewards checks that the components of every decomposed step add up to its
// reward within tolerance. names, when given, is the expected component
// layout. A tolerance <= 0 selects DefaultTolerance.
//
// Steps without components are skipped. When no step carries components the
// report is StatusNotAvailable, which is not a failure.
func Rewards(steps []rollout.StepRecord, names []string, tolerance float64) *Report {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	report := newReport(CheckRewardComponents)
	report.ComponentNames = names

	for i, step := range steps {
		if step.RewardComponents == nil {
			continue
		}
		n := i + 1
		report.StepsChecked++

		var sum float64
		for _, c := range step.RewardComponents {
			sum += c
		}
		delta := math.Abs(sum - step.Reward)
		report.Rows = append(report.Rows, ComponentRow{
			Step:       n,
			Reward:     step.Reward,
			Components: step.RewardComponents,
			Sum:        sum,
			Delta:      delta,
		})

		if len(names) > 0 && len(step.RewardComponents) != len(names) {
			report.AddMismatch(Mismatch{
				Step:     n,
				Index:    -1,
				Field:    "reward_components",
				Expected: fmt.Sprintf("%d components", len(names)),
				Actual:   fmt.Sprintf("%d components", len(step.RewardComponents)),
			})
		}
		// Written so that a NaN delta fails.
		if !(delta <= tolerance) {
			report.AddMismatch(Mismatch{
				Step:     n,
				Index:    -1,
				Field:    "reward",
				Expected: fmt.Sprintf("sum of components %.6g (tolerance %g)", sum, tolerance),
				Actual:   fmt.Sprintf("%.6g", step.Reward),
			})
		}
	}

	if report.StepsChecked == 0 {
		report.Status = StatusNotAvailable
		report.AddNote("reward decomposition not available")
	}
	return report
}
