// Package layering folds settings layers, strongest first, into one value.
package layering

import "reflect"

// MergeLayers starts from the strongest layer and fills every zero field from
// the layers after it. Set fields win: strings, numbers, non-nil pointers to
// scalars and non-nil slices are taken whole. Structs, pointers to structs and
// maps are filled recursively. Use a *bool to override true with false. The
// result shares no memory with the inputs.
func MergeLayers[T any](layers ...T) T {
	var out T
	dst := reflect.ValueOf(&out).Elem()
	for i := range layers {
		fill(dst, reflect.ValueOf(&layers[i]).Elem())
	}
	return out
}

// fill copies src into the zero parts of dst. dst is always owned by the
// caller of MergeLayers.
func fill(dst, src reflect.Value) {
	switch dst.Kind() {
	case reflect.Struct:
		for i := 0; i < dst.NumField(); i++ {
			if dst.Field(i).CanSet() {
				fill(dst.Field(i), src.Field(i))
			}
		}
	case reflect.Pointer:
		if src.IsNil() {
			return
		}
		if dst.IsNil() {
			dst.Set(deepCopy(src))
			return
		}
		switch dst.Elem().Kind() {
		case reflect.Struct, reflect.Map:
			fill(dst.Elem(), src.Elem())
		}
	case reflect.Map:
		if src.IsNil() {
			return
		}
		if dst.IsNil() {
			dst.Set(deepCopy(src))
			return
		}
		iter := src.MapRange()
		for iter.Next() {
			if !dst.MapIndex(iter.Key()).IsValid() {
				dst.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
			}
		}
	default:
		if dst.IsZero() && !src.IsZero() {
			dst.Set(deepCopy(src))
		}
	}
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(deepCopy(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	default:
		return v
	}
}
