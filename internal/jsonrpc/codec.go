// ABOUTME: JSON-RPC 2.0 envelope codec over the neutral message model
// ABOUTME: Implements strict decoding, notification id semantics, and batch framing

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/harper/rpcbridge/internal/rpc"
)

const contentType = "application/json"

// Codec implements the JSON envelope protocol.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return contentType
}

// EncodeRequest serializes with key order {jsonrpc, id, method, params},
// omitting id for notifications and params for no-arg calls. An explicit
// null id is emitted as the null literal.
func (c *Codec) EncodeRequest(req rpc.Request) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0"`)
	if req.ID != nil {
		idData, err := json.Marshal(*req.ID)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"id":`)
		buf.Write(idData)
	}
	methodData, err := json.Marshal(req.Method)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"method":`)
	buf.Write(methodData)
	if req.Params != nil {
		paramsData, err := json.Marshal(*req.Params)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"params":`)
		buf.Write(paramsData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeResponse serializes {jsonrpc, id, result} or {jsonrpc, id, error},
// never both. Unlike requests, a response always carries an id member; when
// the request id could not be determined it encodes as the null literal.
func (c *Codec) EncodeResponse(resp rpc.Response) ([]byte, error) {
	if resp.Result != nil && resp.Error != nil {
		return nil, fmt.Errorf("response has both result and error")
	}

	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0"`)
	if resp.ID != nil {
		idData, err := json.Marshal(*resp.ID)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"id":`)
		buf.Write(idData)
	} else {
		buf.WriteString(`,"id":null`)
	}
	switch {
	case resp.Error != nil:
		errData, err := encodeErrorObject(resp.Error)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"error":`)
		buf.Write(errData)
	case resp.Result != nil:
		resultData, err := json.Marshal(*resp.Result)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"result":`)
		buf.Write(resultData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeErrorObject(e *rpc.ErrorObject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"code":`)
	buf.WriteString(fmt.Sprintf("%d", e.Code))
	msgData, err := json.Marshal(e.Message)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"message":`)
	buf.Write(msgData)
	if e.Data != nil {
		data, err := json.Marshal(*e.Data)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"data":`)
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// requestEnvelope keeps raw members so field absence survives decoding.
type requestEnvelope struct {
	Version *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// DecodeRequest parses one request object. A JSON syntax violation is a
// ParseError; a well-formed object that is not a valid envelope (wrong
// version, missing method) is an InvalidRequest.
func (c *Codec) DecodeRequest(data []byte) (rpc.Request, error) {
	var env requestEnvelope
	if err := strictUnmarshal(data, &env); err != nil {
		return rpc.Request{}, rpc.NewParseError("request", err)
	}

	if env.Version == nil || *env.Version != rpc.Version {
		return rpc.Request{}, rpc.NewInvalidRequest(`jsonrpc member must be "2.0"`)
	}
	if env.Method == nil || *env.Method == "" {
		return rpc.Request{}, rpc.NewInvalidRequest("method member is required")
	}

	req := rpc.Request{Version: *env.Version, Method: *env.Method}

	if env.ID != nil {
		id, err := decodeID(env.ID)
		if err != nil {
			if err == errBadIDKind {
				return rpc.Request{}, rpc.NewInvalidRequest(err.Error())
			}
			return rpc.Request{}, rpc.NewParseError("request", err)
		}
		req.ID = id
	}
	if env.Params != nil {
		var params rpc.Value
		if err := params.UnmarshalJSON(env.Params); err != nil {
			return rpc.Request{}, rpc.NewParseError("request", err)
		}
		req.Params = &params
	}

	return req, nil
}

type responseEnvelope struct {
	Version *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// DecodeResponse parses one response object. Syntax and shape violations are
// ParseError-class, tagged with the response context.
func (c *Codec) DecodeResponse(data []byte) (rpc.Response, error) {
	var env responseEnvelope
	if err := strictUnmarshal(data, &env); err != nil {
		return rpc.Response{}, rpc.NewParseError("response", err)
	}

	if env.Version == nil || *env.Version != rpc.Version {
		return rpc.Response{}, rpc.NewParseError("response", fmt.Errorf(`jsonrpc member must be "2.0"`))
	}
	if env.Result != nil && env.Error != nil {
		return rpc.Response{}, rpc.NewParseError("response", fmt.Errorf("result and error are mutually exclusive"))
	}

	resp := rpc.Response{Version: *env.Version}

	if env.ID != nil {
		id, err := decodeID(env.ID)
		if err != nil {
			return rpc.Response{}, rpc.NewParseError("response", err)
		}
		resp.ID = id
	}
	if env.Result != nil {
		var result rpc.Value
		if err := result.UnmarshalJSON(env.Result); err != nil {
			return rpc.Response{}, rpc.NewParseError("response", err)
		}
		resp.Result = &result
	}
	if env.Error != nil {
		var errEnv struct {
			Code    *int            `json:"code"`
			Message *string         `json:"message"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(env.Error, &errEnv); err != nil {
			return rpc.Response{}, rpc.NewParseError("response", err)
		}
		if errEnv.Code == nil || errEnv.Message == nil {
			return rpc.Response{}, rpc.NewParseError("response", fmt.Errorf("error object requires code and message"))
		}
		obj := &rpc.ErrorObject{Code: *errEnv.Code, Message: *errEnv.Message}
		if errEnv.Data != nil {
			var data rpc.Value
			if err := data.UnmarshalJSON(errEnv.Data); err != nil {
				return rpc.Response{}, rpc.NewParseError("response", err)
			}
			obj.Data = &data
		}
		resp.Error = obj
	}

	return resp, nil
}

// DecodeRequestBatch detects the array framing. A malformed item fails the
// whole inbound unit; no partial batch is surfaced.
func (c *Codec) DecodeRequestBatch(data []byte) ([]rpc.Request, bool, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		req, err := c.DecodeRequest(data)
		if err != nil {
			return nil, false, err
		}
		return []rpc.Request{req}, false, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, true, rpc.NewParseError("request", err)
	}
	if len(items) == 0 {
		return nil, true, rpc.NewInvalidRequest("batch must not be empty")
	}

	reqs := make([]rpc.Request, 0, len(items))
	for _, item := range items {
		req, err := c.DecodeRequest(item)
		if err != nil {
			return nil, true, err
		}
		reqs = append(reqs, req)
	}
	return reqs, true, nil
}

// EncodeResponseBatch serializes responses as a JSON array, preserving order.
func (c *Codec) EncodeResponseBatch(resps []rpc.Response) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, resp := range resps {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := c.EncodeResponse(resp)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// DecodeResponseBatch mirrors DecodeRequestBatch for the client side.
func (c *Codec) DecodeResponseBatch(data []byte) ([]rpc.Response, bool, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		resp, err := c.DecodeResponse(data)
		if err != nil {
			return nil, false, err
		}
		return []rpc.Response{resp}, false, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, true, rpc.NewParseError("response", err)
	}

	resps := make([]rpc.Response, 0, len(items))
	for _, item := range items {
		resp, err := c.DecodeResponse(item)
		if err != nil {
			return nil, true, err
		}
		resps = append(resps, resp)
	}
	return resps, true, nil
}

var errBadIDKind = fmt.Errorf("id must be a string, number, or null")

// decodeID parses an id member, which must be a string, number, or null.
func decodeID(raw json.RawMessage) (*rpc.Value, error) {
	var id rpc.Value
	if err := id.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	switch id.Kind() {
	case rpc.KindNull, rpc.KindString, rpc.KindInt, rpc.KindFloat:
		return &id, nil
	}
	return nil, errBadIDKind
}

// strictUnmarshal rejects trailing garbage after the top-level object.
func strictUnmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err == nil {
		return fmt.Errorf("unexpected data after JSON document")
	}
	return nil
}
