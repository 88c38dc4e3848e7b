package transport_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/devctx-mcp/internal/mcp"
	"github.com/jordigilh/devctx-mcp/internal/transport"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestHTTP() *transport.HTTP {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)
	return transport.NewHTTP(server, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, nil, testLogger())
}

func TestHTTP_Health(t *testing.T) {
	h := newTestHTTP()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_Info(t *testing.T) {
	h := newTestHTTP()
	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var info mcp.ServerInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "devctx-mcp", info.Name)
}

func TestHTTP_RPC_InitializeRoundTrip(t *testing.T) {
	h := newTestHTTP()
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp mcp.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.Error)
}

func TestHTTP_RPC_UnknownMethodIsJSONRPCError(t *testing.T) {
	h := newTestHTTP()
	body := `{"jsonrpc":"2.0","id":1,"method":"nonexistent"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)

	// Transport-level errors (Parse, MethodNotFound) still return HTTP 200
	// with a JSON-RPC error envelope, per spec §7.
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp mcp.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeMethodNotFound, resp.Error.Code)
}
