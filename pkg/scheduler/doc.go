// Package scheduler manages persisted cron job definitions and keeps a
// robfig/cron runner in step with them.
//
// The scheduled_jobs row is the single source of truth. Runner
// registrations are derived state keyed by domain/name; they are
// installed on create, restarted on update, and torn down on disable or
// delete, but a runner failure never fails the row mutation. Reconcile
// diffs enabled rows against live registrations and repairs drift in
// both directions, which makes the whole subsystem crash-tolerant: on
// restart the runner is empty and one reconcile pass rebuilds it.
//
// Executions run through the Tracker: each physical run gets a run id,
// a running log row upserted at start, and a final row with duration,
// attempt count, and error merged in on completion. Statistics are
// incremented atomically in SQL.
package scheduler
