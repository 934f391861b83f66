// Package reconcile keeps tracked sessions in step with their remote state.
//
// # Reconciler
//
// A Reconciler refreshes one session: it fetches the remote state, merges it
// through Store.UpdateSession, and on a status change emits one notification
// and one Transition event. Concurrent lookups of the same remote session are
// collapsed into a single provider call.
//
// # Loop
//
// A Loop runs one poll cycle on Start and one per interval afterwards. At most
// one cycle runs at a time; a trigger that arrives while a cycle is in flight
// is dropped. Stop cancels the schedule but never an in-flight cycle.
//
// Per-session failures are logged and never abort the cycle. Repeated failures
// for one session are logged at WARN once per failure window and at DEBUG
// otherwise.
package reconcile
