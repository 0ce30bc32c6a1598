package envelope

import (
	"reflect"
	"strings"
)

// MaxNesting bounds how deep a payload may nest before it is rejected.
const MaxNesting = 4096

type visit struct {
	ptr  uintptr
	typ  reflect.Type
	kind reflect.Kind
}

// checkAcyclic walks v and fails when a pointer, map or slice refers back to
// one of its own ancestors, or when nesting exceeds MaxNesting. Shared
// references that do not loop are allowed.
func checkAcyclic(v any) error {
	w := &walker{path: make(map[visit]struct{})}
	return w.walk(reflect.ValueOf(v), 0)
}

type walker struct {
	path map[visit]struct{}
}

func (w *walker) walk(v reflect.Value, depth int) error {
	if depth > MaxNesting {
		return ErrNestingTooDeep
	}
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.walk(v.Elem(), depth+1)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return w.enter(v, depth, func() error {
			return w.walk(v.Elem(), depth+1)
		})

	case reflect.Map:
		if v.IsNil() || v.Len() == 0 {
			return nil
		}
		return w.enter(v, depth, func() error {
			iter := v.MapRange()
			for iter.Next() {
				if err := w.walk(iter.Value(), depth+1); err != nil {
					return err
				}
			}
			return nil
		})

	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return nil
		}
		return w.enter(v, depth, func() error {
			return w.elems(v, depth)
		})

	case reflect.Array:
		return w.elems(v, depth)

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || skipped(f) {
				continue
			}
			if err := w.walk(v.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) elems(v reflect.Value, depth int) error {
	for i := 0; i < v.Len(); i++ {
		if err := w.walk(v.Index(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) enter(v reflect.Value, depth int, fn func() error) error {
	key := visit{ptr: v.Pointer(), typ: v.Type(), kind: v.Kind()}
	if _, ok := w.path[key]; ok {
		return ErrCyclicPayload
	}
	w.path[key] = struct{}{}
	defer delete(w.path, key)

	return fn()
}

func skipped(f reflect.StructField) bool {
	name, _, _ := strings.Cut(f.Tag.Get("msgpack"), ",")
	return name == "-"
}
