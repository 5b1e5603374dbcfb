package detect

// Invalidate is the global-invalidation policy: a change to any excluded
// path, or any deletion, marks the entire registry dirty. An excluded file
// commonly holds shared layout or configuration whose change affects every
// generated artifact, and a deletion can break cross-references between
// inputs, so both force a full rebuild signal rather than a partial one.
//
// Kept as a pure function of the cycle's computed values so the policy is
// testable independently of the detector's bookkeeping.
func Invalidate(excludedChanged bool, deletedCount int) bool {
	return excludedChanged || deletedCount > 0
}
