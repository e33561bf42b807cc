// ABOUTME: Binds request params to declared method parameters and invokes handlers
// ABOUTME: Normalizes every failure through the exception mapper; batch-aware

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harper/rpcbridge/internal/logger"
	"github.com/harper/rpcbridge/internal/registry"
	"github.com/harper/rpcbridge/internal/rpc"
)

// nestedContainerKey is the conventional wrapper key a caller may nest its
// arguments under; lookups fall through into it when a name is not found at
// the top level.
const nestedContainerKey = "params"

// Recorder receives one record per dispatched call. Code is 0 on success.
type Recorder interface {
	RecordCall(method, requestID string, code int, elapsed time.Duration)
}

// Outcome is the dispatch result. Raw is set instead of a populated result
// when the handler is flagged unwrapped and produced its own full document.
type Outcome struct {
	Response rpc.Response
	Raw      *rpc.Value
}

// Dispatcher resolves parameters, invokes handlers, and maps failures.
// The registry must be frozen before the first Dispatch call.
type Dispatcher struct {
	registry *registry.Registry
	mapper   *ExceptionMapper
	recorder Recorder
	// Parallel lets ExecuteBatch run items concurrently; output order is
	// preserved either way.
	Parallel bool
}

func New(reg *registry.Registry, mapper *ExceptionMapper) *Dispatcher {
	if mapper == nil {
		mapper = &ExceptionMapper{}
	}
	return &Dispatcher{registry: reg, mapper: mapper}
}

// SetRecorder wires an optional call recorder; nil disables recording.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Mapper exposes the exception mapper for transports that need to render
// decode-time failures in the same shape.
func (d *Dispatcher) Mapper() *ExceptionMapper {
	return d.mapper
}

// Dispatch handles one request. The response always echoes the request id,
// even for notifications; whether to emit a response for a notification is
// the transport's decision, not ours.
func (d *Dispatcher) Dispatch(ctx context.Context, req rpc.Request) Outcome {
	started := time.Now()
	out := d.dispatch(ctx, req)

	if d.recorder != nil {
		code := 0
		if out.Response.Error != nil {
			code = out.Response.Error.Code
		}
		d.recorder.RecordCall(req.Method, formatID(req.ID), code, time.Since(started))
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, req rpc.Request) Outcome {
	desc, err := d.registry.Get(req.Method)
	if err != nil {
		return d.failure(req, err)
	}

	inv, err := d.resolve(&req, desc)
	if err != nil {
		return d.failure(req, err)
	}

	result, err := d.invoke(ctx, desc, inv)
	if err != nil {
		return d.failure(req, err)
	}

	if desc.Unwrapped {
		return Outcome{Response: rpc.Response{Version: rpc.Version, ID: req.ID}, Raw: &result}
	}
	return Outcome{Response: rpc.NewResponse(req.ID, &result)}
}

func (d *Dispatcher) failure(req rpc.Request, err error) Outcome {
	obj := d.mapper.Execute(err)
	logger.Debug("dispatch %s failed: code=%d %s", req.Method, obj.Code, obj.Message)
	return Outcome{Response: rpc.NewErrorResponse(req.ID, obj)}
}

// ExecuteBatch handles an ordered batch. Output order matches input order
// and one item's failure never aborts its siblings. Items may run in
// parallel; the registry is read-only after boot so no locking is needed.
// Unwrapped results inside a batch are folded back into the envelope so the
// batch stays a uniform response list.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, reqs []rpc.Request) []rpc.Response {
	responses := make([]rpc.Response, len(reqs))

	if d.Parallel {
		var wg sync.WaitGroup
		for i, req := range reqs {
			wg.Add(1)
			go func(i int, req rpc.Request) {
				defer wg.Done()
				responses[i] = d.batchItem(ctx, req)
			}(i, req)
		}
		wg.Wait()
		return responses
	}

	for i, req := range reqs {
		responses[i] = d.batchItem(ctx, req)
	}
	return responses
}

func (d *Dispatcher) batchItem(ctx context.Context, req rpc.Request) rpc.Response {
	out := d.Dispatch(ctx, req)
	if out.Raw != nil {
		return rpc.NewResponse(req.ID, out.Raw)
	}
	return out.Response
}

// invoke runs the handler with panic containment so a buggy handler cannot
// take down sibling batch items.
func (d *Dispatcher) invoke(ctx context.Context, desc *registry.Descriptor, inv registry.Invocation) (result rpc.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler %s panicked: %v", desc.Name, r)
			err = rpc.NewInternalError("")
			if d.mapper.Debug {
				err = rpc.NewInternalError(fmt.Sprintf("handler panic: %v", r))
			}
		}
	}()

	return desc.Handler(ctx, inv)
}

// resolve binds each declared parameter in order. Presence is explicit: a
// provided false, zero, or empty string is a provided value, never replaced
// by the declared default.
func (d *Dispatcher) resolve(req *rpc.Request, desc *registry.Descriptor) (registry.Invocation, error) {
	names := make([]string, len(desc.Params))
	args := make([]rpc.Value, len(desc.Params))
	var structs map[string]rpc.ValueUnmarshaler

	positional := 0
	for i, spec := range desc.Params {
		names[i] = spec.Name

		if spec.Type == registry.TypeRequest {
			args[i] = rpc.Null()
			continue
		}

		value, found := lookupParam(req.Params, spec.Name, positional)
		positional++

		if spec.Type == registry.TypeStruct {
			instance, err := buildStruct(req.Params, spec, value, found)
			if err != nil {
				return registry.Invocation{}, err
			}
			if structs == nil {
				structs = make(map[string]rpc.ValueUnmarshaler)
			}
			structs[spec.Name] = instance
			if found {
				args[i] = value
			} else if req.Params != nil {
				args[i] = *req.Params
			} else {
				args[i] = rpc.Null()
			}
			continue
		}

		if !found {
			if spec.Default != nil {
				args[i] = *spec.Default
				continue
			}
			if spec.Required {
				return registry.Invocation{}, rpc.NewInvalidParams("", []rpc.FieldError{
					{Pointer: pointerFor(spec.Name), Message: "required parameter is missing"},
				})
			}
			args[i] = rpc.Null()
			continue
		}

		coerced, err := coerce(spec, value)
		if err != nil {
			return registry.Invocation{}, err
		}
		args[i] = coerced
	}

	return registry.NewInvocation(req, names, args, structs), nil
}

// buildStruct constructs a validated structured parameter from its sub-map,
// or from the entire container when the parameter names the whole payload.
func buildStruct(params *rpc.Value, spec registry.ParamSpec, value rpc.Value, found bool) (rpc.ValueUnmarshaler, error) {
	if spec.New == nil {
		return nil, rpc.NewInternalError(fmt.Sprintf("struct parameter %s has no factory", spec.Name))
	}

	source := value
	if !found {
		if params == nil {
			if spec.Required {
				return nil, rpc.NewInvalidParams("", []rpc.FieldError{
					{Pointer: pointerFor(spec.Name), Message: "required parameter is missing"},
				})
			}
			return nil, nil
		}
		source = *params
	}

	instance := spec.New()
	if err := instance.FromValue(source); err != nil {
		var validation *rpc.ValidationError
		if errors.As(err, &validation) {
			return nil, rpc.NewInvalidParams("", validation.Fields)
		}
		return nil, err
	}
	return instance, nil
}

// lookupParam finds a parameter by name inside params. List params bind
// positionally; map params bind by name, then by dot-path traversal for
// nested values, then inside the conventional nested container.
func lookupParam(params *rpc.Value, name string, position int) (rpc.Value, bool) {
	if params == nil {
		return rpc.Value{}, false
	}

	switch params.Kind() {
	case rpc.KindList:
		items := params.Items()
		if position < len(items) {
			return items[position], true
		}
		return rpc.Value{}, false
	case rpc.KindMap:
		if v, ok := params.Get(name); ok {
			return v, true
		}
		if v, ok := lookupPath(*params, name); ok {
			return v, true
		}
		if nested, ok := params.Get(nestedContainerKey); ok && nested.Kind() == rpc.KindMap {
			return lookupParam(&nested, name, position)
		}
	}
	return rpc.Value{}, false
}

// lookupPath traverses "user.profile.email" style dot paths through nested
// maps.
func lookupPath(container rpc.Value, path string) (rpc.Value, bool) {
	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return rpc.Value{}, false
	}

	current := container
	for _, segment := range segments {
		if current.Kind() != rpc.KindMap {
			return rpc.Value{}, false
		}
		next, ok := current.Get(segment)
		if !ok {
			return rpc.Value{}, false
		}
		current = next
	}
	return current, true
}

// coerce checks a bound value against the declared primitive type. Ints
// promote to floats; nothing else converts implicitly.
func coerce(spec registry.ParamSpec, value rpc.Value) (rpc.Value, error) {
	ok := false
	switch spec.Type {
	case registry.TypeAny:
		ok = true
	case registry.TypeBool:
		ok = value.Kind() == rpc.KindBool
	case registry.TypeInt:
		ok = value.Kind() == rpc.KindInt
	case registry.TypeFloat:
		if value.Kind() == rpc.KindInt {
			return rpc.Float(float64(value.Int())), nil
		}
		ok = value.Kind() == rpc.KindFloat
	case registry.TypeString:
		ok = value.Kind() == rpc.KindString
	case registry.TypeList:
		ok = value.Kind() == rpc.KindList
	case registry.TypeMap:
		ok = value.Kind() == rpc.KindMap
	}
	if !ok {
		return rpc.Value{}, rpc.NewInvalidParams("", []rpc.FieldError{
			{
				Pointer: pointerFor(spec.Name),
				Message: fmt.Sprintf("expected %s, got %s", spec.Type, value.Kind()),
			},
		})
	}
	return value, nil
}

func pointerFor(name string) string {
	return "/" + strings.ReplaceAll(name, ".", "/")
}

// formatID renders a request id for logging and call records.
func formatID(id *rpc.Value) string {
	if id == nil {
		return ""
	}
	data, err := json.Marshal(*id)
	if err != nil {
		return ""
	}
	return string(data)
}
