// Package harness drives a scenario's actors through a forced interleaving
// and decides whether its safety property held.
//
// A Scenario is defined in code. Run builds the scenario's shared
// resources for the requested variant, starts one goroutine per actor and
// waits for all of them under a watchdog:
//
//   - All actors finish: the resource state is snapshotted into an
//     OutcomeRecord and the scenario's Invariant is verified.
//   - The watchdog fires in a deadlock scenario: the hang is the expected
//     demonstration and the verdict is invariant_violated.
//   - The watchdog fires anywhere else, or an actor panics: the run ends
//     in a *FaultError and the invariant is not checked.
//
// In buggy mode a held invariant is reported as indeterminate, never as
// evidence that the bug is absent.
//
// The watchdog is the only cancellation mechanism. Cancelling the run
// context unwinds actors blocked in context-aware operations; an actor in
// the middle of a critical section is never interrupted. Actors that do
// not unwind within the grace period are reported as timed out and their
// goroutines are abandoned.
package harness
