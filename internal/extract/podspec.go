// Package extract pulls the pod specification out of raw workload objects.
package extract

import (
	"encoding/json"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PodSpec extracts the pod specification from a raw Kubernetes object.
//
// It recognizes every pod-bearing workload kind: Pod, Deployment,
// ReplicaSet, StatefulSet, DaemonSet, ReplicationController, Job and
// CronJob. Kinds without a pod template return (nil, nil): they are not
// in scope for pod-level policies. Input that cannot be decoded returns
// an error.
func PodSpec(raw []byte) (*corev1.PodSpec, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty object")
	}

	var meta metav1.TypeMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}

	switch meta.Kind {
	case "Pod":
		var pod corev1.Pod
		if err := json.Unmarshal(raw, &pod); err != nil {
			return nil, fmt.Errorf("decode Pod: %w", err)
		}
		return &pod.Spec, nil

	case "Deployment":
		var deploy appsv1.Deployment
		if err := json.Unmarshal(raw, &deploy); err != nil {
			return nil, fmt.Errorf("decode Deployment: %w", err)
		}
		return &deploy.Spec.Template.Spec, nil

	case "ReplicaSet":
		var rs appsv1.ReplicaSet
		if err := json.Unmarshal(raw, &rs); err != nil {
			return nil, fmt.Errorf("decode ReplicaSet: %w", err)
		}
		return &rs.Spec.Template.Spec, nil

	case "StatefulSet":
		var sts appsv1.StatefulSet
		if err := json.Unmarshal(raw, &sts); err != nil {
			return nil, fmt.Errorf("decode StatefulSet: %w", err)
		}
		return &sts.Spec.Template.Spec, nil

	case "DaemonSet":
		var ds appsv1.DaemonSet
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("decode DaemonSet: %w", err)
		}
		return &ds.Spec.Template.Spec, nil

	case "ReplicationController":
		var rc corev1.ReplicationController
		if err := json.Unmarshal(raw, &rc); err != nil {
			return nil, fmt.Errorf("decode ReplicationController: %w", err)
		}
		// The template is optional on ReplicationController.
		if rc.Spec.Template == nil {
			return nil, nil
		}
		return &rc.Spec.Template.Spec, nil

	case "Job":
		var job batchv1.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, fmt.Errorf("decode Job: %w", err)
		}
		return &job.Spec.Template.Spec, nil

	case "CronJob":
		var cj batchv1.CronJob
		if err := json.Unmarshal(raw, &cj); err != nil {
			return nil, fmt.Errorf("decode CronJob: %w", err)
		}
		return &cj.Spec.JobTemplate.Spec.Template.Spec, nil
	}

	// Unknown kinds carry no pod spec this policy understands.
	return nil, nil
}
