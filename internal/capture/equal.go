package capture

import (
	"math/big"
	"reflect"
	"time"
)

// structEqual implements spec.md §4.3's structural-equality rule: scalars
// by value, time.Time by timestamp, *big.Int by numeric value, everything
// else by deep equality.
func structEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	if ba, ok := a.(*big.Int); ok {
		if bb, ok := b.(*big.Int); ok {
			return ba.Cmp(bb) == 0
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
