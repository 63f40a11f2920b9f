// Package memengine provides an ephemeral, thread-safe, in-memory
// implementation of the engine.Engine interface.
//
// # Purpose
//
// The in-memory engine realizes compiled directives as explicit edge lists
// so that wiring files can be dry-run and the compiler can be tested end to
// end without a simulator process.
//
// # Characteristics
//
//   - **Ephemeral:** Created fresh per run, nothing is persisted
//   - **Thread-Safe:** A single RWMutex guards the edge list; queries take the read lock
//   - **Deterministic:** Random rules draw from a seeded PCG stream
//   - **Recording:** Every accepted directive is kept in arrival order
//
// # Limits
//
// Masks on the spatial path are recorded but not evaluated, so every
// candidate pair is considered inside the mask. Kernels must be numeric
// probabilities. Disconnect supports the one_to_one and all_to_all rules.
package memengine
