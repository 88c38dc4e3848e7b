// Package transport wires the MCP dispatcher (internal/mcp) onto the
// three transports spec §5 names: stdio NDJSON, a plain HTTP POST
// endpoint, and HTTP+SSE for fan-out to long-lived streaming clients.
package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/mcp"
)

const maxLineBytes = 10 * 1024 * 1024

// Stdio serves the dispatcher over newline-delimited JSON on stdin/stdout,
// the transport a local editor or CLI integration speaks (spec §5).
// Requests are handled one at a time, in arrival order: the protocol is
// cooperative, not concurrent, so writes to stdout never interleave.
type Stdio struct {
	server *mcp.Server
	in     io.Reader
	out    io.Writer
	log    *logrus.Entry

	mu sync.Mutex
}

func NewStdio(server *mcp.Server, in io.Reader, out io.Writer, log *logrus.Logger) *Stdio {
	return &Stdio{server: server, in: in, out: out, log: log.WithField("component", "transport.stdio")}
}

// Serve reads one JSON-RPC request per line until ctx is cancelled or the
// input stream ends.
func (s *Stdio) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Copy before handing off: HandleMessage may retain raw past this
		// iteration's Scan() call, which reuses scanner's buffer.
		req := make([]byte, len(line))
		copy(req, line)

		resp := s.server.HandleMessage(ctx, req)

		s.mu.Lock()
		_, writeErr := s.out.Write(append(resp, '\n'))
		s.mu.Unlock()
		if writeErr != nil {
			return writeErr
		}
	}
	return scanner.Err()
}
