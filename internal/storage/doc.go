// Package storage persists scheduled events and the operator audit trail.
//
// It currently supports:
//   - Events (create, list, delete, pending scan, sent commit)
//   - Audit log appends and retention pruning
//   - Notifier dedup state (to survive restarts)
package storage
