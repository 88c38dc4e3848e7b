package transport_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/devctx-mcp/internal/mcp"
	"github.com/jordigilh/devctx-mcp/internal/transport"
)

// TestSSE_StreamEmitsEndpointEvent exercises the scenario in spec §8's
// "SSE round-trip": opening the stream yields an "endpoint" event naming
// a session_id, and a POST to that session_id is acknowledged with 202.
func TestSSE_StreamEmitsEndpointEvent(t *testing.T) {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)
	sse := transport.NewSSE(server, nil, testLogger())

	srv := httptest.NewServer(sse.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var sessionID string
	for i := 0; i < 4; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: /?session_id=") {
			sessionID = strings.TrimSpace(strings.TrimPrefix(line, "data: /?session_id="))
			break
		}
	}
	require.NotEmpty(t, sessionID, "expected an endpoint event naming a session_id")

	postResp, err := http.Post(srv.URL+"/?session_id="+sessionID, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)
	defer postResp.Body.Close()
	assert.Equal(t, http.StatusAccepted, postResp.StatusCode)
}

func TestSSE_PostToUnknownSessionIsBadRequest(t *testing.T) {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)
	sse := transport.NewSSE(server, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/?session_id=does-not-exist", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	sse.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSE_PostWithoutSessionIDIsBadRequest(t *testing.T) {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)
	sse := transport.NewSSE(server, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	sse.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
