package filedb

import (
	"testing"
	"time"
)

func TestValueBandOrder(t *testing.T) {
	cases := []struct {
		v    interface{}
		want band
	}{
		{undefinedValue, bandUndefined},
		{nil, bandNull},
		{42, bandNumber},
		{3.14, bandNumber},
		{"x", bandString},
		{true, bandBoolean},
		{time.Now(), bandDate},
		{[]interface{}{1, 2}, bandSequence},
		{M{"a": 1}, bandMapping},
	}
	for _, c := range cases {
		if got := valueBand(c.v); got != c.want {
			t.Errorf("valueBand(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestCompareThingsTotalOrder(t *testing.T) {
	if compareThings(nil, 1, nil) >= 0 {
		t.Error("null should sort before number")
	}
	if compareThings(1, "a", nil) >= 0 {
		t.Error("number should sort before string")
	}
	if compareThings("a", true, nil) >= 0 {
		t.Error("string should sort before boolean")
	}
	if compareThings(1, 1, nil) != 0 {
		t.Error("equal numbers should compare equal")
	}
	if compareThings([]interface{}{1}, []interface{}{1, 2}, nil) >= 0 {
		t.Error("shorter sequence should sort first on a common prefix")
	}
}

func TestAreThingsEqualUndefinedNeverEqual(t *testing.T) {
	if areThingsEqual(undefinedValue, undefinedValue, nil) {
		t.Error("undefined must never be equal to itself")
	}
	if areThingsEqual(undefinedValue, nil, nil) {
		t.Error("undefined must never be equal to null")
	}
}

func TestCompareThingsCustomStringComparator(t *testing.T) {
	reverse := func(a, b string) int { return -defaultStringCompare(a, b) }
	if compareThings("a", "b", reverse) <= 0 {
		t.Error("custom comparator should reverse string order")
	}
}

func TestCompareMappingsShorterWinsTies(t *testing.T) {
	a := M{"a": 1}
	b := M{"a": 1, "b": 2}
	if compareThings(a, b, nil) >= 0 {
		t.Error("mapping with fewer keys should sort first when the common prefix ties")
	}
}
