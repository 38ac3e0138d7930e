package attempt

// IsBlocked is the advisory blocking rule: a failing attempt whose
// cumulative failure count for (user, step), across all progressions and
// including itself, reaches the step's critical threshold. A success is
// never blocked.
func IsBlocked(succeeded bool, totalFailures, criticalThreshold int) bool {
	return !succeeded && totalFailures >= criticalThreshold
}
