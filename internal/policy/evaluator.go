// Package policy implements the probes admission rule: every container in a
// pod-bearing workload must declare both a liveness and a readiness probe.
//
// The package is stateless. Each Evaluate call is a pure function of its
// input plus logging side effects, so concurrent invocations are safe
// without any synchronization.
package policy

import (
	"go.uber.org/zap"

	"github.com/nlamirault/probes-policy/internal/extract"
)

// RejectionMessageUnparsable is returned when the raw object cannot be
// decoded. Unparsable input is treated as non-compliant rather than
// silently accepted.
const RejectionMessageUnparsable = "Cannot parse validation request"

// Evaluator turns a raw workload object into an admission decision.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates an evaluator logging through the given logger.
// A nil logger disables logging without affecting decisions.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		logger: logger.Named("policy"),
	}
}

// Evaluate decides whether the workload object in raw may be admitted.
//
// Objects the policy cannot decode are rejected (fail closed). Objects
// that carry no pod specification are outside this policy's jurisdiction
// and accepted unconditionally. The object under validation is never
// mutated.
func (e *Evaluator) Evaluate(raw []byte) Decision {
	e.logger.Info("Starting validation")

	podSpec, err := extract.PodSpec(raw)
	if err != nil {
		e.logger.Warn("Cannot unmarshal resource, rejecting request", zap.Error(err))
		return Reject(RejectionMessageUnparsable)
	}
	if podSpec == nil {
		// No pod spec, no data to validate.
		return Accept()
	}

	if err := ValidatePod(podSpec); err != nil {
		e.logger.Info("Rejecting workload", zap.String("reason", err.Error()))
		return Reject(err.Error())
	}
	return Accept()
}
