package policy

// Decision is the admission verdict for one workload under evaluation.
type Decision struct {
	// Allowed reports whether the workload may be admitted.
	Allowed bool

	// Message explains the rejection. Empty for accepted workloads.
	Message string
}

// Accept returns an allowing decision.
func Accept() Decision {
	return Decision{Allowed: true}
}

// Reject returns a denying decision with the given explanation.
func Reject(message string) Decision {
	return Decision{Allowed: false, Message: message}
}
