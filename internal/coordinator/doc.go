// Package coordinator runs the per-app update cycle of installed web apps.
//
// A cycle starts when an app is activated and is due for a check. The coordinator
// fetches the current manifest, computes the update reasons, asks the identity
// approval gate whether the user must confirm the change, and finally writes a
// pending update request and schedules its delivery.
//
// # States
//
// Only one cycle per app is in flight at any time; the live state is the mutual
// exclusion token and an activation during a cycle is a no-op:
//
//	Idle -> Checking -> AwaitingApproval -> Approved -> Scheduled -> Idle
//
// Scheduled holds the app until the delivery reports back, so no second request is
// written while one is outstanding. After a restart the hold is rebuilt from the
// record's scheduled flag on the next activation.
//
// A cycle in Checking waits for the manifest until the fetch deadline. When the
// deadline expires the cycle continues as if no manifest was available, so only a
// stale runtime can cause an update. If that did not request an update the fetch
// stays open for the late manifest window and a manifest arriving in it is handled
// like a timely one.
//
// # Persistence
//
// Everything that must survive a restart lives in the app record. An update attempt is
// recorded as failed as soon as a request is issued and stays failed until delivery
// reports back through OnDeliveryComplete, which is also what clears the force and
// scheduled flags and removes the pending artifact. A cycle that aborts after
// interpreting the fetch outcome leaves the record marked failed, so the next periodic
// check retries.
package coordinator
