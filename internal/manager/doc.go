// Package manager owns the model session: which model or composite is active
// on the inference service, and every swap that changes it. It is structured
// into small files by concern:
//
//   - manager.go: Manager type, constructor, simple getters, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: session state types and the AdapterStore dependency.
//   - errors.go: error taxonomy and helpers (IsAdapterNotFound, IsSwapFailed, ...).
//   - ensure.go: Ensure, the swap state machine and its swap lock.
//   - hygiene.go: best-effort cleanup of the previously active model.
//   - generate.go: Generate/Complete, relaying upstream output to callers.
//   - status_report.go: Snapshot/Status reporting helpers.
//   - events.go, eventpub_memory.go: lifecycle events for observers and tests.
//   - metrics.go: Prometheus instruments for swaps and streams.
//
// Session state is mutated only while the swap lock is held. Reads for the
// idempotent fast path take a read lock and never touch the swap lock, so
// generations against the active model run fully in parallel.
package manager
