// ABOUTME: Outbound call builder with strict id-based response correlation
// ABOUTME: Transport-agnostic; batches tolerate reordered wire responses

package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harper/rpcbridge/internal/jsonrpc"
	"github.com/harper/rpcbridge/internal/rpc"
)

// Transport delivers an encoded payload and returns the raw reply bytes.
// The transport layer owns timeouts and cancellation; ctx is passed through.
type Transport func(ctx context.Context, contentType string, payload []byte) ([]byte, error)

// Call is one outbound invocation. Notifications get no id and expect no
// response.
type Call struct {
	Method       string
	Params       *rpc.Value
	Notification bool
}

// Client issues calls over the JSON envelope. Request ids are generated as
// UUIDs so correlation never depends on arrival order.
type Client struct {
	codec *jsonrpc.Codec
	send  Transport
}

func New(send Transport) *Client {
	return &Client{codec: jsonrpc.New(), send: send}
}

// Invoke performs a single call and returns the correlated response.
func (c *Client) Invoke(ctx context.Context, method string, params *rpc.Value) (rpc.Response, error) {
	id := rpc.String(uuid.NewString())
	req := rpc.Request{Version: rpc.Version, ID: &id, Method: method, Params: params}

	payload, err := c.codec.EncodeRequest(req)
	if err != nil {
		return rpc.Response{}, err
	}
	reply, err := c.send(ctx, c.codec.ContentType(), payload)
	if err != nil {
		return rpc.Response{}, err
	}

	resp, err := c.codec.DecodeResponse(reply)
	if err != nil {
		return rpc.Response{}, err
	}
	if resp.ID == nil || !resp.ID.Equal(id) {
		return rpc.Response{}, fmt.Errorf("response id does not match request id")
	}
	return resp, nil
}

// Notify sends a notification; the server emits no response for it.
func (c *Client) Notify(ctx context.Context, method string, params *rpc.Value) error {
	req := rpc.Request{Version: rpc.Version, Method: method, Params: params}

	payload, err := c.codec.EncodeRequest(req)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, c.codec.ContentType(), payload)
	return err
}

// InvokeBatch sends calls as one batch and returns responses in call order,
// one per non-notification call. The wire may deliver responses in any
// order; correlation is strictly by id equality. A missing response fails
// only its own slot, as a synthesized error response.
func (c *Client) InvokeBatch(ctx context.Context, calls []Call) ([]rpc.Response, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("batch must not be empty")
	}

	reqs := make([]rpc.Request, 0, len(calls))
	ids := make([]*rpc.Value, 0, len(calls))
	for _, call := range calls {
		req := rpc.Request{Version: rpc.Version, Method: call.Method, Params: call.Params}
		if !call.Notification {
			id := rpc.String(uuid.NewString())
			req.ID = &id
			ids = append(ids, &id)
		}
		reqs = append(reqs, req)
	}

	payload, err := encodeRequestBatch(c.codec, reqs)
	if err != nil {
		return nil, err
	}
	reply, err := c.send(ctx, c.codec.ContentType(), payload)
	if err != nil {
		return nil, err
	}

	// All-notification batches get no reply body.
	if len(ids) == 0 {
		return nil, nil
	}

	resps, _, err := c.codec.DecodeResponseBatch(reply)
	if err != nil {
		return nil, err
	}

	ordered := make([]rpc.Response, len(ids))
	for i, id := range ids {
		found := false
		for _, resp := range resps {
			if resp.ID != nil && resp.ID.Equal(*id) {
				ordered[i] = resp
				found = true
				break
			}
		}
		if !found {
			ordered[i] = rpc.NewErrorResponse(id, &rpc.ErrorObject{
				Code:    rpc.CodeInternalError,
				Message: "no response correlated to request id",
			})
		}
	}
	return ordered, nil
}

func encodeRequestBatch(codec *jsonrpc.Codec, reqs []rpc.Request) ([]byte, error) {
	payload := []byte{'['}
	for i, req := range reqs {
		if i > 0 {
			payload = append(payload, ',')
		}
		data, err := codec.EncodeRequest(req)
		if err != nil {
			return nil, err
		}
		payload = append(payload, data...)
	}
	return append(payload, ']'), nil
}
