// Package supervisor implements the supervision core of the ddns daemon.
//
// Overview
// A Registry owns a table of uniquely named services, a report mailbox, a
// coalescing wake signal and a persistent shutdown signal. Each registration
// hands out a Handle (given to the service) and a Guard (kept by the caller
// until it is resolved with the Task running the service).
//
// Data flow:
//
//	service goroutine          Handle                 Registry            driving loop
//	      |                      |                       |                     |
//	      | RequestUpdate() ---->| wake.notify() ------->| wake chan --------->| NextEvent: EventWake
//	      | ReportExit(7) ------>| reporter.send() ----->| mailbox ----------->| NextEvent: EventTerminated
//	      |<-- WaitForShutdown --|<---- shutdown chan ---| Shutdown() <--------|
//
// Invariants:
//   - A name is registered at most once at any instant.
//   - Every registration produces exactly one Report: explicit (Report*),
//     implicit (Go reports Success or Panic) or synthetic (Guard.Close).
//     A resolved task returning without one is fatal (ErrNoReport).
//   - The table entry is removed no later than NextEvent emits its Report.
//   - RequestUpdate is coalescing: N calls between two reads give one EventWake.
//   - The shutdown signal fires at most once and stays fired.
//
// Only a single goroutine may call NextEvent, and Register, Guard.Resolve and
// Shutdown are expected to run on that same owner. The shutdown signal is
// advisory: a service that never returns stalls Shutdown forever.
package supervisor
