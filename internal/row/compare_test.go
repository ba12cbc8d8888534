package row

import "testing"

func TestCompareBoolSupportsFullOperatorSet(t *testing.T) {
	cases := []struct {
		op     Op
		actual bool
		want   bool
		result bool
	}{
		{Eq, true, true, true},
		{Eq, true, false, false},
		{Neq, true, false, true},
		{Lt, false, true, true},
		{Lt, true, false, false},
		{Lte, false, false, true},
		{Gt, true, false, true},
		{Gt, false, true, false},
		{Gte, true, true, true},
	}
	for _, c := range cases {
		got, err := Compare(Bool, c.op, c.actual, c.want)
		if err != nil {
			t.Fatalf("Compare(%v, %v, %v): %v", c.op, c.actual, c.want, err)
		}
		if got != c.result {
			t.Errorf("Compare(%v, %v, %v) = %v, want %v", c.op, c.actual, c.want, got, c.result)
		}
	}
}
