// ABOUTME: Boot-time method registry mapping names to handler descriptors
// ABOUTME: Append-only during boot, read-only afterwards; no locking on reads

package registry

import (
	"context"
	"fmt"

	"github.com/harper/rpcbridge/internal/rpc"
)

// ParamType declares how the dispatcher binds one parameter.
type ParamType int

const (
	TypeAny ParamType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeList
	TypeMap
	// TypeStruct binds a validated structured type built via its factory's
	// FromValue capability.
	TypeStruct
	// TypeRequest injects the request object itself, with no params lookup.
	TypeRequest
)

func (t ParamType) String() string {
	switch t {
	case TypeAny:
		return "any"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	case TypeStruct:
		return "struct"
	case TypeRequest:
		return "request"
	}
	return "unknown"
}

// ParamSpec is one declared parameter: resolved in declaration order.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
	Default  *rpc.Value
	// New builds an empty instance for TypeStruct params; the dispatcher
	// runs FromValue on it against the bound sub-map.
	New func() rpc.ValueUnmarshaler
}

// Invocation carries the resolved arguments for one call, in declared order,
// plus the originating request for handlers that asked for it.
type Invocation struct {
	Request *rpc.Request
	args    []rpc.Value
	names   []string
	structs map[string]rpc.ValueUnmarshaler
}

func NewInvocation(req *rpc.Request, names []string, args []rpc.Value, structs map[string]rpc.ValueUnmarshaler) Invocation {
	return Invocation{Request: req, args: args, names: names, structs: structs}
}

// Arg returns the resolved value at the declared position.
func (inv Invocation) Arg(i int) rpc.Value {
	if i < 0 || i >= len(inv.args) {
		return rpc.Null()
	}
	return inv.args[i]
}

// Named returns the resolved value for a declared parameter name.
func (inv Invocation) Named(name string) rpc.Value {
	for i, n := range inv.names {
		if n == name {
			return inv.args[i]
		}
	}
	return rpc.Null()
}

// Struct returns the validated structured parameter built for name, or nil.
func (inv Invocation) Struct(name string) rpc.ValueUnmarshaler {
	return inv.structs[name]
}

// HandlerFunc is the handle operation of a registered method.
type HandlerFunc func(ctx context.Context, inv Invocation) (rpc.Value, error)

// Descriptor is the immutable definition of one callable method.
type Descriptor struct {
	Name    string
	Summary string
	Params  []ParamSpec
	Result  string
	Errors  []int
	Handler HandlerFunc
	// Unwrapped handlers produce the final output with no envelope,
	// reserved for methods that build their own full document.
	Unwrapped bool
}

// AlreadyRegisteredError is the fatal boot-time duplicate registration failure.
type AlreadyRegisteredError struct {
	Name string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("method already registered: %s", e.Name)
}

// Registry maps method names to descriptors. Populate during boot, then
// treat as frozen; Register is not safe to call concurrently or after boot.
type Registry struct {
	methods map[string]*Descriptor
	order   []string
}

func New() *Registry {
	return &Registry{methods: make(map[string]*Descriptor)}
}

// Register binds a name to a descriptor, failing on duplicates. Duplicate
// registration is a boot bug and is never retried.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("method name must not be empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("method %s has no handler", d.Name)
	}
	if _, exists := r.methods[d.Name]; exists {
		return &AlreadyRegisteredError{Name: d.Name}
	}
	r.methods[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register for boot paths where a duplicate is fatal.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the descriptor bound to name, or MethodNotFound.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.methods[name]
	if !ok {
		return nil, rpc.NewMethodNotFound(name)
	}
	return d, nil
}

// All returns the full mapping in registration order, for introspection and
// documentation only, never for invocation ordering.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.methods[name])
	}
	return out
}
