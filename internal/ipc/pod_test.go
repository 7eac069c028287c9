package ipc

import (
	"reflect"
	"testing"
)

// assertPOD walks typ's fields (recursing into nested structs and fixed
// arrays) and fails if it finds a pointer, slice, map, channel, function, or
// interface field, since any of those would break VirtualAddressSpaceIndependent
// copying between processes' views of shared memory (spec §9).
func assertPOD(t *testing.T, typ reflect.Type) {
	t.Helper()
	switch typ.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer, reflect.String:
		t.Fatalf("%s is not POD (kind %s)", typ, typ.Kind())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			assertPOD(t, typ.Field(i).Type)
		}
	case reflect.Array:
		assertPOD(t, typ.Elem())
	}
}

func TestCommand_IsPOD(t *testing.T) {
	assertPOD(t, reflect.TypeOf(Command{}))
}

func TestShimEvent_IsPOD(t *testing.T) {
	assertPOD(t, reflect.TypeOf(ShimEvent{}))
}
