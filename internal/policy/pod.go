package policy

import (
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// ValidatePod checks that every container in the pod spec declares both a
// liveness and a readiness probe. It returns nil when the pod is compliant,
// otherwise an error whose message carries one line per violation.
//
// Traversal order is a contract: primary containers in declaration order,
// then init containers, then ephemeral containers. Every container is
// visited even after earlier failures. A pod with zero containers is
// compliant.
func ValidatePod(spec *corev1.PodSpec) error {
	var violations []string

	for i := range spec.Containers {
		c := &spec.Containers[i]
		for _, finding := range checkProbes(containerView{c}) {
			violations = append(violations, fmt.Sprintf("container %s is invalid: %s", c.Name, finding))
		}
	}

	for i := range spec.InitContainers {
		c := &spec.InitContainers[i]
		for _, finding := range checkProbes(containerView{c}) {
			violations = append(violations, fmt.Sprintf("init container %s is invalid: %s", c.Name, finding))
		}
	}

	for i := range spec.EphemeralContainers {
		c := &spec.EphemeralContainers[i]
		for _, finding := range checkProbes(ephemeralContainerView{c}) {
			violations = append(violations, fmt.Sprintf("ephemeral container %s is invalid: %s", c.Name, finding))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return errors.New(strings.Join(violations, "\n"))
}
