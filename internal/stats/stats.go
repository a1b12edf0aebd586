// Package stats reduces episode records to summary statistics.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/rollout"
)

// Moments describes one sample.
type Moments struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// Summary aggregates episode lengths and total rewards.
type Summary struct {
	Episodes   int     `json:"episodes"`
	Length     Moments `json:"length"`
	Reward     Moments `json:"reward"`
	Terminated int     `json:"terminated"`
	Truncated  int     `json:"truncated"`
}

// Summarize computes the summary of records. The standard deviation is the
// population one. Summarize does not modify records.
func Summarize(records []*rollout.EpisodeRecord) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, env.NewConfigurationError("summarize", "no episode records")
	}

	lengths := make([]float64, len(records))
	rewards := make([]float64, len(records))
	s := Summary{Episodes: len(records)}
	for i, rec := range records {
		if rec == nil {
			return Summary{}, env.NewConfigurationError("summarize", "nil episode record")
		}
		lengths[i] = float64(rec.Length)
		rewards[i] = rec.TotalReward
		if rec.Terminated {
			s.Terminated++
		}
		if rec.Truncated {
			s.Truncated++
		}
	}
	s.Length = moments(lengths)
	s.Reward = moments(rewards)
	return s, nil
}

func moments(x []float64) Moments {
	mean, std := stat.PopMeanStdDev(x, nil)
	// Non-finite input propagates into the moments.
	if len(x) == 1 && !math.IsNaN(mean) && !math.IsInf(mean, 0) {
		std = 0
	}
	return Moments{
		Mean:   mean,
		Min:    floats.Min(x),
		Max:    floats.Max(x),
		StdDev: std,
	}
}
