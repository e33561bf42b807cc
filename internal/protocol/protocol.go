// ABOUTME: Codec capability shared by the JSON and XML envelope protocols
// ABOUTME: Converts between wire bytes and the neutral message representation

package protocol

import "github.com/harper/rpcbridge/internal/rpc"

// Protocol converts between wire bytes and the neutral message model. Decode
// failures are ParseError-class (*rpc.Error wrapping the parser error); no
// partial data is ever returned.
type Protocol interface {
	EncodeRequest(req rpc.Request) ([]byte, error)
	DecodeRequest(data []byte) (rpc.Request, error)
	EncodeResponse(resp rpc.Response) ([]byte, error)
	DecodeResponse(data []byte) (rpc.Response, error)
	ContentType() string
}
