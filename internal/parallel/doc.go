// Package parallel checks that several environment instances can run side by
// side without sharing state.
//
// A Checker owns a fixed pool of workers, one goroutine per handle. The
// coordinator drives the pool in synchronized rounds: it sends every worker a
// command over that worker's channel, then waits until every worker has
// written its slot of the round's result slice before aggregating anything.
//
//	Idle -> WorkersStarting -> RoundRunning -> Stopping -> Closed
//	  any state -> Aborting -> Closed
//
// A failure in any worker aborts the run. Every handle is closed exactly once
// on every exit path; close failures are recorded but never replace the
// primary error.
package parallel
