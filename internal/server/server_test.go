// ABOUTME: Tests for the stdio serve loop and the built-in system methods
// ABOUTME: Covers notification suppression, batch framing, and both envelopes

package server

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/rpcbridge/internal/dispatch"
	"github.com/harper/rpcbridge/internal/jsonrpc"
	"github.com/harper/rpcbridge/internal/protocol"
	"github.com/harper/rpcbridge/internal/registry"
	"github.com/harper/rpcbridge/internal/rpc"
	"github.com/harper/rpcbridge/internal/xmlrpc"
)

func newTestServer(t *testing.T, proto protocol.Protocol) *Server {
	t.Helper()
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	require.NoError(t, reg.Register(&registry.Descriptor{
		Name:    "echo",
		Summary: "Return the text argument unchanged.",
		Params: []registry.ParamSpec{
			{Name: "text", Type: registry.TypeString, Required: true},
		},
		Result: "the input text",
		Handler: func(ctx context.Context, inv registry.Invocation) (rpc.Value, error) {
			return inv.Named("text"), nil
		},
	}))
	return New(proto, dispatch.New(reg, &dispatch.ExceptionMapper{}))
}

func TestHandleSingleJSON(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"text":"hi"}}`))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"hi"}`, string(reply))
}

func TestHandleNotificationSuppressedJSON(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"echo","params":{"text":"hi"}}`))
	assert.Nil(t, reply, "json notifications must produce no reply")
}

func TestHandleParseErrorJSON(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(), []byte(`{invalid}`))
	require.NotNil(t, reply)

	resp, err := jsonrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeParseError, resp.Error.Code)
	require.NotNil(t, resp.ID, "parse error reply carries a null id")
	assert.True(t, resp.ID.IsNull())
}

func TestHandleBatchJSON(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(), []byte(
		`[{"jsonrpc":"2.0","id":1,"method":"echo","params":{"text":"a"}},`+
			`{"jsonrpc":"2.0","method":"echo","params":{"text":"quiet"}},`+
			`{"jsonrpc":"2.0","id":3,"method":"ghost"}]`))
	require.NotNil(t, reply)

	resps, isBatch, err := jsonrpc.New().DecodeResponseBatch(reply)
	require.NoError(t, err)
	assert.True(t, isBatch)
	require.Len(t, resps, 2, "the notification entry is dropped from the reply")

	assert.Equal(t, "a", resps[0].Result.Text())
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resps[1].Error.Code)
}

func TestHandleBatchAllNotifications(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(), []byte(
		`[{"jsonrpc":"2.0","method":"echo","params":{"text":"a"}},`+
			`{"jsonrpc":"2.0","method":"echo","params":{"text":"b"}}]`))
	assert.Nil(t, reply)
}

func TestHandleEmptyBatch(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(), []byte(`[]`))
	require.NotNil(t, reply)

	resp, err := jsonrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidRequest, resp.Error.Code)
}

func TestHandleXML(t *testing.T) {
	s := newTestServer(t, xmlrpc.New())

	reply := s.Handle(context.Background(), []byte(
		`<?xml version="1.0"?><methodCall><methodName>echo</methodName>`+
			`<params><param><value><struct><member><name>text</name>`+
			`<value><string>hi</string></value></member></struct></value></param></params></methodCall>`))
	require.NotNil(t, reply, "the xml wire always answers")

	resp, err := xmlrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "hi", resp.Result.Text())
}

func TestHandleXMLFault(t *testing.T) {
	s := newTestServer(t, xmlrpc.New())

	reply := s.Handle(context.Background(), []byte(
		`<?xml version="1.0"?><methodCall><methodName>ghost</methodName></methodCall>`))
	require.NotNil(t, reply)

	resp, err := xmlrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestServeLineLoop(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"text":"one"}}` + "\n" +
			"\n" + // blank lines are skipped
			`{"jsonrpc":"2.0","method":"echo","params":{"text":"quiet"}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"echo","params":{"text":"two"}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2, "notifications produce no output line")
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"one"}`, lines[0])
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":"two"}`, lines[1])
}

func TestSystemListMethods(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"system.listMethods"}`))
	resp, err := jsonrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Result)

	names := make([]string, 0)
	for _, v := range resp.Result.Items() {
		names = append(names, v.Text())
	}
	assert.Contains(t, names, "system.listMethods")
	assert.Contains(t, names, "system.methodHelp")
	assert.Contains(t, names, "system.describe")
	assert.Contains(t, names, "echo")
}

func TestSystemMethodHelp(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"system.methodHelp","params":{"method":"echo"}}`))
	resp, err := jsonrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "Return the text argument unchanged.", resp.Result.Text())

	reply = s.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"system.methodHelp","params":{"method":"ghost"}}`))
	resp, err = jsonrpc.New().DecodeResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestSystemDescribeIsUnwrapped(t *testing.T) {
	s := newTestServer(t, jsonrpc.New())

	reply := s.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"system.describe"}`))
	require.NotNil(t, reply)

	// The discovery document is emitted bare, with no jsonrpc envelope
	out := string(reply)
	assert.NotContains(t, out, `"jsonrpc"`)

	var doc rpc.Value
	require.NoError(t, doc.UnmarshalJSON(reply))
	methods, ok := doc.Get("methods")
	require.True(t, ok)
	require.NotEmpty(t, methods.Items())

	first := methods.Items()[0]
	name, _ := first.Get("name")
	assert.NotEmpty(t, name.Text())
}
