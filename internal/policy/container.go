package policy

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// probeCarrier is the capability view shared by regular and ephemeral
// containers: a name plus the two probe fields this policy inspects.
// Both concrete container types are normalized into this view so the
// evaluation logic exists exactly once.
type probeCarrier interface {
	Name() string
	HasLivenessProbe() bool
	HasReadinessProbe() bool
}

// containerView adapts corev1.Container to the probeCarrier view.
type containerView struct {
	c *corev1.Container
}

func (v containerView) Name() string            { return v.c.Name }
func (v containerView) HasLivenessProbe() bool  { return v.c.LivenessProbe != nil }
func (v containerView) HasReadinessProbe() bool { return v.c.ReadinessProbe != nil }

// ephemeralContainerView adapts corev1.EphemeralContainer to the
// probeCarrier view. Ephemeral containers embed their fields in
// EphemeralContainerCommon.
type ephemeralContainerView struct {
	c *corev1.EphemeralContainer
}

func (v ephemeralContainerView) Name() string            { return v.c.Name }
func (v ephemeralContainerView) HasLivenessProbe() bool  { return v.c.LivenessProbe != nil }
func (v ephemeralContainerView) HasReadinessProbe() bool { return v.c.ReadinessProbe != nil }

// checkProbes evaluates one container and returns one finding per missing
// probe. A container missing both probes produces two findings. Probe
// content is never inspected, only presence.
func checkProbes(c probeCarrier) []string {
	var findings []string
	if !c.HasLivenessProbe() {
		findings = append(findings, fmt.Sprintf("container %s without liveness probe is not accepted", c.Name()))
	}
	if !c.HasReadinessProbe() {
		findings = append(findings, fmt.Sprintf("container %s without readiness probe is not accepted", c.Name()))
	}
	return findings
}
