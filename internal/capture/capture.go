// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package capture discovers which referent and property a caller means from
// a pointer to a field of a probe value.
//
//	reg := capture.NewRegistry()
//	p, _ := capture.Probe[Person](reg)
//	b, _ := reg.Capture(&p.Name) // Person.Name
package capture

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/canonical/sqlmatch/internal/expr"
	"github.com/canonical/sqlmatch/internal/typeinfo"
)

// probe is a registered probe value and the address range it occupies.
type probe struct {
	value reflect.Value
	start uintptr
	end   uintptr
	info  *typeinfo.Info
}

// Registry hands out probe values and maps pointers into them back to a
// binding. A Registry holds one probe per type for its whole lifetime and is
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*probe
	probes []*probe
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]*probe)}
}

// Probe returns the probe value for T registered with reg, creating it on
// first use. T must be a named struct type.
func Probe[T any](reg *Registry) (*T, error) {
	v, err := reg.probe(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return v.Interface().(*T), nil
}

// MustProbe is like Probe but panics on error.
func MustProbe[T any](reg *Registry) *T {
	p, err := Probe[T](reg)
	if err != nil {
		panic(err)
	}
	return p
}

func (reg *Registry) probe(t reflect.Type) (reflect.Value, error) {
	reg.mu.RLock()
	p, ok := reg.byType[t]
	reg.mu.RUnlock()
	if ok {
		return p.value, nil
	}

	info, err := typeinfo.TypeInfo(t)
	if err != nil {
		return reflect.Value{}, err
	}
	if t.Size() == 0 {
		return reflect.Value{}, fmt.Errorf("cannot probe zero-sized type %q", t.Name())
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if p, ok := reg.byType[t]; ok {
		return p.value, nil
	}
	v := reflect.New(t)
	start := v.Pointer()
	p = &probe{value: v, start: start, end: start + t.Size(), info: info}
	reg.byType[t] = p
	reg.probes = append(reg.probes, p)
	return v, nil
}

// Capture returns the binding of the probe field fieldPtr points to. The
// pointer must be taken from a probe of this registry, as in &probe.Name.
func (reg *Registry) Capture(fieldPtr any) (expr.Binding, error) {
	v := reflect.ValueOf(fieldPtr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return expr.Binding{}, fmt.Errorf("need pointer to a probe field, got %T", fieldPtr)
	}
	addr := v.Pointer()

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, p := range reg.probes {
		if addr < p.start || addr >= p.end {
			continue
		}
		offset := addr - p.start
		for _, f := range p.info.Fields {
			sf := p.info.Type.Field(f.Index)
			if sf.Offset == offset && sf.Type == v.Type().Elem() {
				return expr.Binding{Referent: p.info, Property: f.Name}, nil
			}
		}
		return expr.Binding{}, fmt.Errorf("pointer into probe %q is not an exported field", p.info.Name())
	}
	return expr.Binding{}, fmt.Errorf("pointer of type %T does not point into a probe", fieldPtr)
}

// Referent returns the referent of the probe p, which must have been
// returned by Probe on this registry.
func (reg *Registry) Referent(p any) (expr.Referent, error) {
	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("need probe pointer, got %T", p)
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if pr, ok := reg.byType[v.Type().Elem()]; ok && pr.start == v.Pointer() {
		return pr.info, nil
	}
	return nil, fmt.Errorf("value of type %T is not a probe", p)
}
