package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	"k8s.io/apimachinery/pkg/types"

	"github.com/nlamirault/probes-policy/internal/policy"
)

var (
	scheme       = runtime.NewScheme()
	codecs       = serializer.NewCodecFactory(scheme)
	deserializer = codecs.UniversalDeserializer()
)

func init() {
	_ = admissionv1.AddToScheme(scheme)
}

// WorkloadEvaluator decides whether a raw workload object may be admitted.
type WorkloadEvaluator interface {
	Evaluate(raw []byte) policy.Decision
}

// AdmissionHandler handles admission review requests.
type AdmissionHandler struct {
	evaluator WorkloadEvaluator
	logger    *zap.Logger

	// parseWarnLimiter throttles warn logs for unparsable requests so a
	// flood of junk input cannot saturate the log sink.
	parseWarnLimiter *rate.Limiter
}

// NewAdmissionHandler creates a new admission handler.
func NewAdmissionHandler(evaluator WorkloadEvaluator, logger *zap.Logger) *AdmissionHandler {
	return &AdmissionHandler{
		evaluator:        evaluator,
		logger:           logger.Named("admission"),
		parseWarnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Handle handles an admission review request.
func (h *AdmissionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	// Limit body size to prevent DoS (typical admission review is ~10-50KB)
	const maxBodySize = 1 << 20 // 1MB
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	review := &admissionv1.AdmissionReview{}
	if _, _, err := deserializer.Decode(body, nil, review); err != nil {
		// Unlike warning-only webhooks, this policy fails closed: input
		// that cannot be understood is not admitted.
		if h.parseWarnLimiter.Allow() {
			h.logger.Warn("Failed to decode admission review", zap.Error(err))
		}
		h.sendResponse(w, &admissionv1.AdmissionReview{
			Response: rejection("", policy.RejectionMessageUnparsable),
		})
		return
	}

	review.Response = h.processRequest(review.Request)
	h.sendResponse(w, review)
}

// processRequest evaluates the object carried by an admission request.
// This webhook is validating only: it never mutates the object.
func (h *AdmissionHandler) processRequest(req *admissionv1.AdmissionRequest) *admissionv1.AdmissionResponse {
	if req == nil {
		return rejection("", policy.RejectionMessageUnparsable)
	}

	h.logger.Info("Processing admission request",
		zap.String("uid", string(req.UID)),
		zap.String("namespace", req.Namespace),
		zap.String("kind", req.Kind.Kind),
		zap.String("name", req.Name),
		zap.String("operation", string(req.Operation)),
	)

	decision := h.evaluator.Evaluate(req.Object.Raw)
	if !decision.Allowed {
		h.logger.Info("Rejecting admission request",
			zap.String("uid", string(req.UID)),
			zap.String("message", decision.Message),
		)
		return rejection(req.UID, decision.Message)
	}

	return &admissionv1.AdmissionResponse{
		UID:     req.UID,
		Allowed: true,
	}
}

// rejection builds a denying admission response carrying the given message.
func rejection(uid types.UID, message string) *admissionv1.AdmissionResponse {
	return &admissionv1.AdmissionResponse{
		UID:     uid,
		Allowed: false,
		Result: &metav1.Status{
			Status:  metav1.StatusFailure,
			Message: message,
			Code:    http.StatusForbidden,
		},
	}
}

// sendResponse sends an admission review response.
func (h *AdmissionHandler) sendResponse(w http.ResponseWriter, review *admissionv1.AdmissionReview) {
	review.TypeMeta = metav1.TypeMeta{
		APIVersion: "admission.k8s.io/v1",
		Kind:       "AdmissionReview",
	}

	responseBytes, err := json.Marshal(review)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(responseBytes)
}
