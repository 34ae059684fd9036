// Package service drives the ddns daemon.
//
// Overview
// The daemon runs in epochs. An epoch loads the config, creates a
// supervisor.Registry, starts the listener services and hands the registry
// to a Loop. The Loop refreshes the DNS record on every tick of its Schedule
// and reacts to the events of the registry. An epoch ends with an Action:
// restart (a new epoch starts at once) or exit with a code. Run executes the
// epochs and survives crashed ones: an epoch which panicked or failed is
// retried after a backoff.
//
// Data flow:
//
//	Run                Daemon.Epoch            Loop.Do                 Registry
//	 |                      |                     |                        |
//	 | epoch(ctx) --------->| New, Go(listeners)->|----------------------->|
//	 |                      | Do(ctx, reg) ------>| NextEvent(deadline) -->|
//	 |                      |                     |<-- wake / terminated --|
//	 |                      |                     | tick: probe, Update    |
//	 |                      |                     | exit/restart: Shutdown>|
//	 |<------ Action -------|<------ Action ------|                        |
//
// Invariants:
//   - No service outlives its epoch: exit and restart shut the registry down
//     and wait for all services; a panicking epoch abandons it.
//   - A wake resets the schedule: the next tick is due immediately.
//   - Ticks missed while updating are skipped, not replayed.
package service
