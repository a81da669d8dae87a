package core

import "reflect"

// deepEqual is the structural-equality relation used by Const
// patterns. Reflection is the only reasonable way to compare two
// arbitrary host payloads for structural equality in Go; none of the
// libraries pulled in elsewhere in this module (goja, yaml, bbolt,
// cronexpr) offer a general value-equality primitive, so this one
// corner of the matcher stays on the standard library.
func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
