// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package dispatch

import (
	"sort"

	"github.com/neuralens-dev/neuralens/internal/imaging"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Descriptor is the remote-call shape for one operation: what to ask the
// provider to do with the uploaded image.
type Descriptor struct {
	// Operation is the registered operation name, sent to the provider as
	// the edit identifier.
	Operation string
	// Prompt is the natural-language edit instruction for prompt-driven
	// providers.
	Prompt string
}

// Operation binds a name to its remote descriptor and local fallback.
type Operation struct {
	Name     string
	Summary  string
	Remote   Descriptor
	Fallback imaging.Transform
}

// Registry is the static operation catalog. It is built once at process
// start and never mutated afterwards, so lookups need no locking.
type Registry struct {
	ops   map[string]Operation
	names []string
}

// NewRegistry builds a registry from the given operations. Duplicate or
// incomplete entries are construction errors.
func NewRegistry(ops ...Operation) (*Registry, error) {
	r := &Registry{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if op.Name == "" {
			return nil, nlerr.New(nlerr.CodeConfigValidateInvalidValue, "operation name must not be empty")
		}
		if op.Fallback == nil {
			return nil, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
				"operation %q has no local fallback", op.Name)
		}
		if _, exists := r.ops[op.Name]; exists {
			return nil, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
				"operation %q registered twice", op.Name)
		}
		r.ops[op.Name] = op
		r.names = append(r.names, op.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Resolve looks up an operation by name.
func (r *Registry) Resolve(name string) (Operation, error) {
	op, ok := r.ops[name]
	if !ok {
		return Operation{}, nlerr.Errorf(nlerr.CodeDispatchOperationNotFound,
			"unknown operation %q", name)
	}
	return op, nil
}

// List returns all operations sorted by name.
func (r *Registry) List() []Operation {
	out := make([]Operation, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.ops[name])
	}
	return out
}

// Names returns the sorted operation names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
