package admission_test

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/devctx-mcp/internal/admission"
	"github.com/jordigilh/devctx-mcp/internal/config"
	apperrors "github.com/jordigilh/devctx-mcp/internal/errors"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestGate_Check_RejectsInvalidAPIKey(t *testing.T) {
	cfg := config.AdmissionConfig{APIKeys: []string{"secret"}, RateLimit: 100, RatePerSeconds: 60}
	gate := admission.New(cfg, testLogger(), admission.NewMetrics())

	err := gate.Check(context.Background(), "10.0.0.1:1234", "wrong")

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}

func TestGate_Check_AcceptsValidAPIKey(t *testing.T) {
	cfg := config.AdmissionConfig{APIKeys: []string{"secret"}, RateLimit: 100, RatePerSeconds: 60}
	gate := admission.New(cfg, testLogger(), admission.NewMetrics())

	err := gate.Check(context.Background(), "10.0.0.1:1234", "secret")

	assert.NoError(t, err)
}

func TestGate_Check_RejectsDisallowedIP(t *testing.T) {
	cfg := config.AdmissionConfig{AllowedIPs: []string{"10.0.0.0/24"}, RateLimit: 100, RatePerSeconds: 60}
	gate := admission.New(cfg, testLogger(), admission.NewMetrics())

	err := gate.Check(context.Background(), "192.168.1.1:1234", "")

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}

func TestGate_Check_AllowsWithinAllowedIPRange(t *testing.T) {
	cfg := config.AdmissionConfig{AllowedIPs: []string{"10.0.0.0/24"}, RateLimit: 100, RatePerSeconds: 60}
	gate := admission.New(cfg, testLogger(), admission.NewMetrics())

	err := gate.Check(context.Background(), "10.0.0.42:1234", "")

	assert.NoError(t, err)
}

func TestGate_Check_RateLimitsExcessRequests(t *testing.T) {
	cfg := config.AdmissionConfig{RateLimit: 1, RatePerSeconds: 60}
	gate := admission.New(cfg, testLogger(), admission.NewMetrics())

	first := gate.Check(context.Background(), "10.0.0.1:1234", "")
	second := gate.Check(context.Background(), "10.0.0.1:1234", "")

	assert.NoError(t, first)
	require.Error(t, second)
	var appErr *apperrors.AppError
	require.True(t, apperrors.As(second, &appErr))
	assert.Equal(t, apperrors.ErrorTypeRateLimit, appErr.Type)
	assert.Equal(t, 60, appErr.RetryAfterSeconds)
}

func TestGate_Acquire_RejectsPastMaxConnections(t *testing.T) {
	cfg := config.AdmissionConfig{MaxConnections: 1, RateLimit: 100, RatePerSeconds: 60}
	gate := admission.New(cfg, testLogger(), admission.NewMetrics())

	release, err := gate.Acquire()
	require.NoError(t, err)

	_, err = gate.Acquire()
	require.Error(t, err)

	release()
	_, err = gate.Acquire()
	assert.NoError(t, err)
}
