// ABOUTME: Newline-delimited stdio serve loop binding a codec to the dispatcher
// ABOUTME: Owns notification suppression and batch framing; the core stays transport-free

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/harper/rpcbridge/internal/dispatch"
	"github.com/harper/rpcbridge/internal/logger"
	"github.com/harper/rpcbridge/internal/protocol"
	"github.com/harper/rpcbridge/internal/rpc"
)

const maxLineBytes = 16 * 1024 * 1024

// batchCodec is the optional batch framing a protocol may support. The JSON
// envelope does; the XML envelope has no batch wire shape.
type batchCodec interface {
	DecodeRequestBatch(data []byte) ([]rpc.Request, bool, error)
	EncodeResponseBatch(resps []rpc.Response) ([]byte, error)
}

// Server reads one message per line, dispatches, and writes one reply line.
// Whether a notification gets a reply is decided here, not in the core: the
// JSON envelope suppresses notification responses, the XML envelope always
// answers because its wire has no notification concept.
type Server struct {
	proto protocol.Protocol
	disp  *dispatch.Dispatcher

	mu sync.Mutex
	w  io.Writer
}

func New(proto protocol.Protocol, disp *dispatch.Dispatcher) *Server {
	return &Server{proto: proto, disp: disp}
}

// Serve processes messages from r until EOF or ctx cancellation.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.w = w

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		reply := s.Handle(ctx, line)
		if reply == nil {
			continue
		}
		if err := s.writeLine(reply); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Handle processes one wire message and returns the reply bytes, or nil when
// no reply should be emitted (notification or all-notification batch).
func (s *Server) Handle(ctx context.Context, payload []byte) []byte {
	if bc, ok := s.proto.(batchCodec); ok {
		return s.handleBatch(ctx, bc, payload)
	}
	return s.handleSingle(ctx, payload)
}

func (s *Server) handleSingle(ctx context.Context, payload []byte) []byte {
	req, err := s.proto.DecodeRequest(payload)
	if err != nil {
		return s.encodeError(nil, err)
	}

	out := s.disp.Dispatch(ctx, req)
	if out.Raw != nil {
		return s.encodeRaw(out.Raw)
	}
	return s.encodeResponse(out.Response)
}

func (s *Server) handleBatch(ctx context.Context, bc batchCodec, payload []byte) []byte {
	reqs, isBatch, err := bc.DecodeRequestBatch(payload)
	if err != nil {
		return s.encodeError(nil, err)
	}

	if !isBatch {
		req := reqs[0]
		out := s.disp.Dispatch(ctx, req)
		if req.IsNotification() {
			return nil
		}
		if out.Raw != nil {
			return s.encodeRaw(out.Raw)
		}
		return s.encodeResponse(out.Response)
	}

	responses := s.disp.ExecuteBatch(ctx, reqs)

	// Notifications produce no response entries on the wire.
	answered := make([]rpc.Response, 0, len(responses))
	for i, resp := range responses {
		if reqs[i].IsNotification() {
			continue
		}
		answered = append(answered, resp)
	}
	if len(answered) == 0 {
		return nil
	}

	data, err := bc.EncodeResponseBatch(answered)
	if err != nil {
		logger.Error("failed to encode batch response: %v", err)
		return s.encodeError(nil, rpc.NewInternalError(""))
	}
	return data
}

func (s *Server) encodeResponse(resp rpc.Response) []byte {
	data, err := s.proto.EncodeResponse(resp)
	if err != nil {
		logger.Error("failed to encode response: %v", err)
		fallback, _ := s.proto.EncodeResponse(rpc.NewErrorResponse(resp.ID, rpc.NewInternalError("").Object()))
		return fallback
	}
	return data
}

func (s *Server) encodeError(id *rpc.Value, err error) []byte {
	obj := s.disp.Mapper().Execute(err)
	return s.encodeResponse(rpc.NewErrorResponse(id, obj))
}

// encodeRaw emits an unwrapped handler's document with no envelope.
func (s *Server) encodeRaw(v *rpc.Value) []byte {
	data, err := json.Marshal(*v)
	if err != nil {
		logger.Error("failed to encode raw result: %v", err)
		return s.encodeError(nil, rpc.NewInternalError(""))
	}
	return data
}

func (s *Server) writeLine(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	_, err := s.w.Write([]byte{'\n'})
	return err
}
