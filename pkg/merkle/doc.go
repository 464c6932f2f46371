// Package merkle chunks a byte buffer, builds the binary SHA-256 tree used to
// content-address it, and derives and validates per-chunk inclusion proofs.
//
// Scope:
//   - Split a buffer into chunks under the fixed MaxChunkSize/MinChunkSize policy
//   - Hash chunks into leaves and reduce them into a single root
//   - Serialize root-to-leaf proofs (96-byte branch records + 64-byte leaf record)
//   - Replay a proof against a trusted root id
//
// Non-goals:
//   - No I/O and no logging; every function is a pure transform over owned bytes
//   - No transaction semantics (see pkg/transaction)
//
// The chunk policy, note encoding and record layout are part of the external
// wire format and must not change.
package merkle
