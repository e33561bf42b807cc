// ABOUTME: Built-in introspection methods registered during boot
// ABOUTME: system.describe is unwrapped; it builds its own full document

package server

import (
	"context"

	"github.com/harper/rpcbridge/internal/registry"
	"github.com/harper/rpcbridge/internal/rpc"
)

// RegisterBuiltins binds the system.* methods. Must run during boot, before
// the registry freezes.
func RegisterBuiltins(reg *registry.Registry) error {
	listMethods := &registry.Descriptor{
		Name:    "system.listMethods",
		Summary: "List the names of all registered methods.",
		Result:  "list of method names",
		Handler: func(ctx context.Context, inv registry.Invocation) (rpc.Value, error) {
			names := []rpc.Value{}
			for _, d := range reg.All() {
				names = append(names, rpc.String(d.Name))
			}
			return rpc.List(names...), nil
		},
	}
	if err := reg.Register(listMethods); err != nil {
		return err
	}

	methodHelp := &registry.Descriptor{
		Name:    "system.methodHelp",
		Summary: "Return the summary of one registered method.",
		Params: []registry.ParamSpec{
			{Name: "method", Type: registry.TypeString, Required: true},
		},
		Result: "summary string",
		Errors: []int{rpc.CodeMethodNotFound},
		Handler: func(ctx context.Context, inv registry.Invocation) (rpc.Value, error) {
			d, err := reg.Get(inv.Named("method").Text())
			if err != nil {
				return rpc.Value{}, err
			}
			return rpc.String(d.Summary), nil
		},
	}
	if err := reg.Register(methodHelp); err != nil {
		return err
	}

	describe := &registry.Descriptor{
		Name:      "system.describe",
		Summary:   "Describe every registered method as a full discovery document.",
		Result:    "discovery document",
		Unwrapped: true,
		Handler: func(ctx context.Context, inv registry.Invocation) (rpc.Value, error) {
			methods := []rpc.Value{}
			for _, d := range reg.All() {
				params := []rpc.Value{}
				for _, p := range d.Params {
					spec := rpc.NewMap().
						Set("name", rpc.String(p.Name)).
						Set("type", rpc.String(p.Type.String())).
						Set("required", rpc.Bool(p.Required))
					if p.Default != nil {
						spec.Set("default", *p.Default)
					}
					params = append(params, spec)
				}
				entry := rpc.NewMap().
					Set("name", rpc.String(d.Name)).
					Set("summary", rpc.String(d.Summary)).
					Set("params", rpc.List(params...)).
					Set("result", rpc.String(d.Result))
				if len(d.Errors) > 0 {
					codes := []rpc.Value{}
					for _, code := range d.Errors {
						codes = append(codes, rpc.Int(int64(code)))
					}
					entry.Set("errors", rpc.List(codes...))
				}
				methods = append(methods, entry)
			}
			return rpc.NewMap().Set("methods", rpc.List(methods...)), nil
		},
	}
	return reg.Register(describe)
}
