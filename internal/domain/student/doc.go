// Package student holds the student record and the StudentRegistry.
//
// Students are owned by an external ingestion process; this package only
// reads them through a Source. The Registry keeps an immutable Snapshot of
// every known student together with the classifier that was current when the
// snapshot was built. Readers grab one snapshot per operation, so a refresh
// running concurrently can never mix old and new data into a single answer.
//
// Risk tiers are never stored on the record. Snapshot.ByRiskTier and
// Snapshot.Classify compute them from the raw metrics on every call.
//
//	reg := student.NewRegistry(source, policyStore)
//	stats, err := reg.Refresh(ctx)
//	snap := reg.Snapshot()
//	high, _ := snap.ByRiskTier(risk.TierHigh)
package student
