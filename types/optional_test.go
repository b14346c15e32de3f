package types_test

import (
	"testing"

	"github.com/vsariola/beatbox/types"
)

func TestOptional(t *testing.T) {
	empty := types.None[int64]()
	if !empty.Empty() {
		t.Fatalf("None should be empty")
	}
	if v := empty.Or(7); v != 7 {
		t.Errorf("Or on empty returned %v, expected 7", v)
	}
	some := types.Some[int64](3)
	if v, ok := some.Unpack(); !ok || v != 3 {
		t.Errorf("Unpack returned %v, %v, expected 3, true", v, ok)
	}
	if v := some.Or(7); v != 3 {
		t.Errorf("Or on present value returned %v, expected 3", v)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Value of empty optional should panic")
		}
	}()
	_ = empty.Value()
}
