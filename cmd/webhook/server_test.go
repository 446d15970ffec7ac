package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/nlamirault/probes-policy/internal/webhook"
)

func TestNewServer(t *testing.T) {
	handler := newHandler()
	server := NewServer(ServerConfig{Addr: ":8443"}, handler, zap.NewNop())

	require.NotNil(t, server)
	assert.Equal(t, ":8443", server.config.Addr)
	assert.Equal(t, handler, server.handler)
}

func TestHandleHealth(t *testing.T) {
	server := NewServer(ServerConfig{}, newHandler(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.handleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHandleReady(t *testing.T) {
	server := NewServer(ServerConfig{}, newHandler(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	server.handleReady(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestGetTLSConfig_FileBasedCerts(t *testing.T) {
	server := NewServer(ServerConfig{
		TLSCertFile: "/path/to/cert.pem",
		TLSKeyFile:  "/path/to/key.pem",
	}, newHandler(), zap.NewNop())

	tlsConfig, err := server.getTLSConfig()

	require.NoError(t, err)
	require.NotNil(t, tlsConfig)
	assert.Nil(t, tlsConfig.GetCertificate)
}

func TestGetTLSConfig_CertManager(t *testing.T) {
	certManager := webhook.NewCertManager(fake.NewSimpleClientset(), webhook.DefaultCertManagerConfig("probes-policy"), zap.NewNop())
	require.NoError(t, certManager.EnsureCertificates(context.Background()))

	server := NewServer(ServerConfig{CertManager: certManager}, newHandler(), zap.NewNop())

	tlsConfig, err := server.getTLSConfig()

	require.NoError(t, err)
	require.NotNil(t, tlsConfig)
	require.NotNil(t, tlsConfig.GetCertificate)

	cert, err := tlsConfig.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotNil(t, cert)
}

func TestGetTLSConfig_CertManager_EmptyCerts(t *testing.T) {
	certManager := webhook.NewCertManager(fake.NewSimpleClientset(), webhook.DefaultCertManagerConfig("probes-policy"), zap.NewNop())

	server := NewServer(ServerConfig{CertManager: certManager}, newHandler(), zap.NewNop())

	tlsConfig, err := server.getTLSConfig()
	require.NoError(t, err)
	require.NotNil(t, tlsConfig.GetCertificate)

	_, err = tlsConfig.GetCertificate(nil)
	assert.Error(t, err)
}

func TestGetTLSConfig_NoCerts(t *testing.T) {
	server := NewServer(ServerConfig{}, newHandler(), zap.NewNop())

	_, err := server.getTLSConfig()

	assert.Error(t, err)
}

func TestStart_NoCerts_ReturnsError(t *testing.T) {
	server := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, newHandler(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := server.Start(ctx)
	assert.Error(t, err)
}

func TestStart_CertManagerCerts_ShutsDownOnCancel(t *testing.T) {
	certManager := webhook.NewCertManager(fake.NewSimpleClientset(), webhook.DefaultCertManagerConfig("probes-policy"), zap.NewNop())
	require.NoError(t, certManager.EnsureCertificates(context.Background()))

	server := NewServer(ServerConfig{
		Addr:        "127.0.0.1:0",
		CertManager: certManager,
	}, newHandler(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	err := server.Start(ctx)
	assert.NoError(t, err)
}

func TestRun_FailsWithoutInClusterConfig(t *testing.T) {
	// Outside a cluster there is no service account token, so self-signed
	// mode cannot build a client.
	err := run(runConfig{
		Addr:           ":0",
		SelfSignedMode: true,
	}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-cluster config")
}

func TestStartServer_FileCerts_NoClient(t *testing.T) {
	// With file-based certs and self-signed mode off, no Kubernetes client
	// is needed. The missing files surface as a listener error.
	cfg := runConfig{
		Addr:           "127.0.0.1:0",
		TLSCertFile:    "/nonexistent/cert.pem",
		TLSKeyFile:     "/nonexistent/key.pem",
		SelfSignedMode: false,
	}

	err := startServer(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}
