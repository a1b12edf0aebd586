// Package env defines the environment contract consumed by the envprobe
// diagnostics.
//
// The simulator itself is not part of this module. Diagnostics only see an
// environment through Handle, which mirrors the standard reset/step/render/close
// interface of continuous-control environments:
//
//	obs, info, err := h.Reset(env.Seed(42))
//	res, err := h.Step(action)
//	frame, err := h.Render()
//	err = h.Close()
//
// # Capabilities
//
// Not every environment variant exposes a reward decomposition. Instead of
// probing for methods at run time, a handle declares its Variant and callers
// branch on that tag through Decomposition:
//
//	if dec, ok := env.Decomposition(h); ok {
//	    components := dec.RewardComponents()
//	}
//
// # Errors
//
// All diagnostics report failures through *Error, whose Kind places the
// failure in one of four categories: configuration, environment interaction,
// validation mismatch and resource. Only validation mismatches are soft.
package env
