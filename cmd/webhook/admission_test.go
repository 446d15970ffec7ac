package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/nlamirault/probes-policy/internal/policy"
	"github.com/nlamirault/probes-policy/internal/testutil"
)

// stubEvaluator is a test double for WorkloadEvaluator.
type stubEvaluator struct {
	decision policy.Decision
}

func (s *stubEvaluator) Evaluate(raw []byte) policy.Decision {
	return s.decision
}

// buildAdmissionReview wraps a raw object into an AdmissionReview JSON body.
func buildAdmissionReview(t *testing.T, raw []byte) []byte {
	t.Helper()
	review := admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{APIVersion: "admission.k8s.io/v1", Kind: "AdmissionReview"},
		Request: &admissionv1.AdmissionRequest{
			UID:       "test-uid",
			Namespace: "default",
			Name:      "my-pod",
			Kind:      metav1.GroupVersionKind{Version: "v1", Kind: "Pod"},
			Operation: admissionv1.Create,
			Object:    runtime.RawExtension{Raw: raw},
		},
	}
	body, err := json.Marshal(review)
	require.NoError(t, err)
	return body
}

// decodeAdmissionReview parses an AdmissionReview from a response body.
func decodeAdmissionReview(t *testing.T, body []byte) admissionv1.AdmissionReview {
	t.Helper()
	var review admissionv1.AdmissionReview
	err := json.Unmarshal(body, &review)
	require.NoError(t, err, "failed to decode AdmissionReview response")
	return review
}

func newHandler() *AdmissionHandler {
	return NewAdmissionHandler(policy.NewEvaluator(zap.NewNop()), zap.NewNop())
}

func TestNewAdmissionHandler(t *testing.T) {
	handler := newHandler()

	require.NotNil(t, handler)
	assert.NotNil(t, handler.evaluator)
	assert.NotNil(t, handler.logger)
	assert.NotNil(t, handler.parseWarnLimiter)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	handler := newHandler()

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	w := httptest.NewRecorder()

	handler.Handle(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandle_WrongContentType(t *testing.T) {
	handler := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.Handle(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestHandle_CompliantPod(t *testing.T) {
	handler := newHandler()
	pod := testutil.Pod("valid-pod", corev1.PodSpec{
		Containers: []corev1.Container{testutil.Container("web", true, true)},
	})
	body := buildAdmissionReview(t, testutil.RawObject(t, pod))

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	review := decodeAdmissionReview(t, w.Body.Bytes())
	require.NotNil(t, review.Response)
	assert.True(t, review.Response.Allowed)
	assert.Equal(t, "test-uid", string(review.Response.UID))
}

func TestHandle_NonCompliantPod(t *testing.T) {
	handler := newHandler()
	pod := testutil.Pod("invalid-pod", corev1.PodSpec{
		Containers: []corev1.Container{testutil.Container("web", false, true)},
	})
	body := buildAdmissionReview(t, testutil.RawObject(t, pod))

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	review := decodeAdmissionReview(t, w.Body.Bytes())
	require.NotNil(t, review.Response)
	assert.False(t, review.Response.Allowed)
	require.NotNil(t, review.Response.Result)
	assert.Contains(t, review.Response.Result.Message, "without liveness probe is not accepted")
}

func TestHandle_InvalidBody_FailsClosed(t *testing.T) {
	handler := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader([]byte("not an admission review")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	review := decodeAdmissionReview(t, w.Body.Bytes())
	require.NotNil(t, review.Response)
	assert.False(t, review.Response.Allowed)
	assert.Equal(t, "Cannot parse validation request", review.Response.Result.Message)
}

func TestProcessRequest_NilRequest_FailsClosed(t *testing.T) {
	handler := newHandler()

	response := handler.processRequest(nil)

	require.NotNil(t, response)
	assert.False(t, response.Allowed)
	assert.Equal(t, policy.RejectionMessageUnparsable, response.Result.Message)
}

func TestProcessRequest_UnparsableObject(t *testing.T) {
	handler := newHandler()

	response := handler.processRequest(&admissionv1.AdmissionRequest{
		UID:    "uid-1",
		Object: runtime.RawExtension{Raw: []byte("garbage")},
	})

	require.NotNil(t, response)
	assert.False(t, response.Allowed)
	assert.Equal(t, "uid-1", string(response.UID))
	assert.Equal(t, policy.RejectionMessageUnparsable, response.Result.Message)
}

func TestProcessRequest_NonPodBearingObject(t *testing.T) {
	handler := newHandler()
	raw := []byte(`{"apiVersion": "v1", "kind": "ConfigMap", "metadata": {"name": "cfg"}}`)

	response := handler.processRequest(&admissionv1.AdmissionRequest{
		UID:    "uid-2",
		Kind:   metav1.GroupVersionKind{Version: "v1", Kind: "ConfigMap"},
		Object: runtime.RawExtension{Raw: raw},
	})

	require.NotNil(t, response)
	assert.True(t, response.Allowed)
}

func TestProcessRequest_UsesEvaluatorDecision(t *testing.T) {
	evaluator := &stubEvaluator{decision: policy.Reject("synthetic rejection")}
	handler := NewAdmissionHandler(evaluator, zap.NewNop())

	response := handler.processRequest(&admissionv1.AdmissionRequest{
		UID:    "uid-3",
		Object: runtime.RawExtension{Raw: []byte("{}")},
	})

	require.NotNil(t, response)
	assert.False(t, response.Allowed)
	assert.Equal(t, "synthetic rejection", response.Result.Message)
	assert.Equal(t, int32(http.StatusForbidden), response.Result.Code)
}

func TestSendResponse_SetsTypeMeta(t *testing.T) {
	handler := newHandler()
	w := httptest.NewRecorder()

	handler.sendResponse(w, &admissionv1.AdmissionReview{
		Response: &admissionv1.AdmissionResponse{Allowed: true},
	})

	require.Equal(t, http.StatusOK, w.Code)
	review := decodeAdmissionReview(t, w.Body.Bytes())
	assert.Equal(t, "admission.k8s.io/v1", review.APIVersion)
	assert.Equal(t, "AdmissionReview", review.Kind)
}
