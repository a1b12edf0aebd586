// Package harness runs diagnostic suites against an environment.
//
// A suite is a YAML file listing checks. Each check opens its own handles
// through the configured factory, exercises one part of the environment
// contract and closes them again, so a failing check never leaks state into
// the next one.
//
// # Suite Format
//
//	name: hopper-diagnostics
//	description: "Contract checks for the hopper environment"
//	spec: ../specs/hopper.cue
//	env_id: HopperBulletEnv-v0
//	checks:
//	  - type: info
//	  - type: episodes
//	    episodes: 5
//	    seed: 0
//	  - type: zero_action
//	    max_steps: 50
//	  - name: four-workers
//	    type: parallel
//	    workers: 4
//	    rounds: 100
//	    verify_reference: true
//	  - type: capture
//	    duration: 5
//	    fps: 30
//	    output: hopper_random_policy.gif
//
// # Check Types
//
//   - info: the handle's spec is valid and matches the declared contract
//   - episodes: rollouts end by termination or truncation within the step cap
//   - reward_components: decomposed rewards add up to the scalar reward
//   - observations: observations have the declared length and finite values
//   - zero_action: a zero action sequence terminates before max_steps
//   - functional: create, reset, step, a 100-step loop and close all work
//   - env_checker: seeded resets repeat, reset and step honor the schema, and
//     an out-of-bounds action is tolerated
//   - parallel: independent handles stepped in lockstep stay isolated
//   - capture: a rendered capture has exactly duration*fps frames
//
// # Verdicts
//
// Every property of a check is pass, mismatch, error or not_available.
// Mismatches are contract violations and fail the suite. Errors are
// interaction, resource or configuration failures and also mark the run as a
// hard failure. not_available never fails a suite.
package harness
