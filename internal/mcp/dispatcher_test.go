package mcp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

func TestDispatcher(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "MCP Dispatcher Suite")
}

func newTestServer() (*Server, *Registry) {
	reg := NewRegistry()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(reg, ServerInfo{Name: "devctx-mcp", Version: "test"}, log, time.Second), reg
}

var _ = Describe("Server.HandleMessage", func() {
	It("replies to initialize with the protocol handshake", func() {
		s, _ := newTestServer()
		raw, _ := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "initialize"})

		out := s.HandleMessage(context.Background(), raw)

		var resp Response
		Expect(json.Unmarshal(out, &resp)).To(Succeed())
		Expect(resp.Error).To(BeNil())
	})

	It("returns MethodNotFound for an unrecognized method", func() {
		s, _ := newTestServer()
		raw, _ := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "bogus"})

		out := s.HandleMessage(context.Background(), raw)

		var resp Response
		Expect(json.Unmarshal(out, &resp)).To(Succeed())
		Expect(resp.Error).ToNot(BeNil())
		Expect(resp.Error.Code).To(Equal(ErrCodeMethodNotFound))
	})

	It("returns a Parse error for malformed JSON", func() {
		s, _ := newTestServer()

		out := s.HandleMessage(context.Background(), []byte("{not json"))

		var resp Response
		Expect(json.Unmarshal(out, &resp)).To(Succeed())
		Expect(resp.Error.Code).To(Equal(ErrCodeParse))
	})

	It("lists registered tools in registration order", func() {
		s, reg := newTestServer()
		reg.Register(Tool{Name: "a", Description: "first", Schema: objectSchema(nil), Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			return nil, nil
		}})
		reg.Register(Tool{Name: "b", Description: "second", Schema: objectSchema(nil), Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			return nil, nil
		}})

		raw, _ := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/list"})
		out := s.HandleMessage(context.Background(), raw)

		var resp Response
		Expect(json.Unmarshal(out, &resp)).To(Succeed())
		result, _ := json.Marshal(resp.Result)
		var list ToolsListResult
		Expect(json.Unmarshal(result, &list)).To(Succeed())
		Expect(list.Tools).To(HaveLen(2))
		Expect(list.Tools[0].Name).To(Equal("a"))
		Expect(list.Tools[1].Name).To(Equal("b"))
	})

	It("reports ToolNotFound for an unregistered tool name", func() {
		s, _ := newTestServer()
		params, _ := json.Marshal(ToolCallParams{Name: "missing"})
		raw, _ := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params})

		out := s.HandleMessage(context.Background(), raw)

		var resp Response
		Expect(json.Unmarshal(out, &resp)).To(Succeed())
		Expect(resp.Error).ToNot(BeNil())
		Expect(resp.Error.Code).To(Equal(ErrCodeToolNotFound))
	})

	It("recovers a handler panic into an isError result instead of crashing", func() {
		s, reg := newTestServer()
		reg.Register(Tool{Name: "boom", Description: "panics", Schema: objectSchema(nil), Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			panic("kaboom")
		}})
		params, _ := json.Marshal(ToolCallParams{Name: "boom"})
		raw, _ := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params})

		out := s.HandleMessage(context.Background(), raw)

		var resp Response
		Expect(json.Unmarshal(out, &resp)).To(Succeed())
		Expect(resp.Error).To(BeNil())
		result, _ := json.Marshal(resp.Result)
		var callResult ToolCallResult
		Expect(json.Unmarshal(result, &callResult)).To(Succeed())
		Expect(callResult.IsError).To(BeTrue())
	})
})
