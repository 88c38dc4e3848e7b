package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/devctx-mcp/internal/mcp"
	"github.com/jordigilh/devctx-mcp/internal/transport"
)

func TestStdio_ServeEchoesOneResponsePerLine(t *testing.T) {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n",
	)
	var out bytes.Buffer
	stdio := transport.NewStdio(server, in, &out, testLogger())

	err := stdio.Serve(context.Background())
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":1`)
	assert.Contains(t, lines[1], `"id":2`)
}

func TestStdio_ServeSkipsBlankLines(t *testing.T) {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)

	in := strings.NewReader("\n\n" + `{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer
	stdio := transport.NewStdio(server, in, &out, testLogger())

	require.NoError(t, stdio.Serve(context.Background()))

	scanner := bufio.NewScanner(&out)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"id":1`)
}

func TestStdio_ServeStopsWhenContextCancelled(t *testing.T) {
	reg := mcp.NewRegistry()
	server := mcp.NewServer(reg, mcp.ServerInfo{Name: "devctx-mcp", Version: "test"}, testLogger(), 0)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer
	stdio := transport.NewStdio(server, in, &out, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := stdio.Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
