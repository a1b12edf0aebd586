package inspect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/rollout"
)

// CheckObservations names the observation schema report.
const CheckObservations = "observations"

// LabeledValue is one observation coordinate with its documented role.
type LabeledValue struct {
	Index int     `json:"index"`
	Label string  `json:"label,omitempty"`
	Value float64 `json:"value"`
}

// Range is the observed span of one observation coordinate.
type Range struct {
	Index int     `json:"index"`
	Label string  `json:"label,omitempty"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Label pairs every coordinate of obs with its role from spec. Undocumented
// positions get an empty label.
func Label(spec env.Spec, obs env.Observation) []LabeledValue {
	out := make([]LabeledValue, len(obs))
	for i, v := range obs {
		out[i] = LabeledValue{Index: i, Label: spec.ObservationLabel(i), Value: v}
	}
	return out
}

// Observations checks every step against the dimensional contract of spec and
// for non-finite values. The report labels the first observation and carries
// per-coordinate ranges over all finite values. An invalid spec yields a
// not-available report.
func Observations(spec env.Spec, steps []rollout.StepRecord) *Report {
	report := newReport(CheckObservations)
	if len(steps) == 0 {
		report.Status = StatusNotAvailable
		report.AddNote("no steps recorded")
		return report
	}
	if err := spec.Validate(); err != nil {
		report.Status = StatusNotAvailable
		report.AddNote("invalid schema: %v", err)
		return report
	}
	if len(spec.ObservationLabels) == 0 {
		report.AddNote("no observation labels declared")
	}

	columns := make([][]float64, spec.ObservationDim)
	for i, step := range steps {
		n := i + 1
		report.StepsChecked++

		if len(step.Observation) != spec.ObservationDim {
			report.AddMismatch(Mismatch{
				Step:     n,
				Index:    -1,
				Field:    "observation",
				Expected: fmt.Sprintf("length %d", spec.ObservationDim),
				Actual:   fmt.Sprintf("length %d", len(step.Observation)),
			})
		}
		if len(step.Action) != spec.ActionDim {
			report.AddMismatch(Mismatch{
				Step:     n,
				Index:    -1,
				Field:    "action",
				Expected: fmt.Sprintf("length %d", spec.ActionDim),
				Actual:   fmt.Sprintf("length %d", len(step.Action)),
			})
		}
		for j, v := range step.Observation {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				report.AddMismatch(Mismatch{
					Step:     n,
					Index:    j,
					Field:    "observation",
					Expected: "finite value",
					Actual:   fmt.Sprint(v),
				})
				continue
			}
			if j < len(columns) {
				columns[j] = append(columns[j], v)
			}
		}
	}

	report.Labeled = Label(spec, steps[0].Observation)
	for j, col := range columns {
		if len(col) == 0 {
			continue
		}
		report.Ranges = append(report.Ranges, Range{
			Index: j,
			Label: spec.ObservationLabel(j),
			Min:   floats.Min(col),
			Max:   floats.Max(col),
		})
	}
	return report
}
