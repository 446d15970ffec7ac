// Package testutil provides shared test helpers for the probes-policy
// project. Import this in test files to avoid duplicating container and
// workload builders.
package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Probe returns a minimal HTTP probe. Probe content is irrelevant to the
// policy, only presence matters.
func Probe() *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path: "/healthz",
				Port: intstr.FromInt32(8080),
			},
		},
	}
}

// Container builds a container carrying the requested probes.
func Container(name string, liveness, readiness bool) corev1.Container {
	c := corev1.Container{
		Name:  name,
		Image: "registry.example.com/" + name + ":latest",
	}
	if liveness {
		c.LivenessProbe = Probe()
	}
	if readiness {
		c.ReadinessProbe = Probe()
	}
	return c
}

// EphemeralContainer builds an ephemeral container carrying the requested
// probes.
func EphemeralContainer(name string, liveness, readiness bool) corev1.EphemeralContainer {
	c := corev1.EphemeralContainer{
		EphemeralContainerCommon: corev1.EphemeralContainerCommon{
			Name:  name,
			Image: "registry.example.com/" + name + ":latest",
		},
	}
	if liveness {
		c.LivenessProbe = Probe()
	}
	if readiness {
		c.ReadinessProbe = Probe()
	}
	return c
}

// Pod wraps a pod spec into a v1 Pod object named name.
func Pod(name string, spec corev1.PodSpec) *corev1.Pod {
	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Pod",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
		},
		Spec: spec,
	}
}

// RawObject marshals a Kubernetes object to JSON, failing the test on error.
func RawObject(t *testing.T, obj interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err, "failed to marshal object")
	return raw
}
