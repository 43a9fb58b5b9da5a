package domain

import (
	"math"
	"testing"
)

func TestAddPoints(t *testing.T) {
	tests := []struct {
		a, b int64
		want int64
		ok   bool
	}{
		{5, 3, 8, true},
		{-4, 1, -3, true},
		{math.MaxInt64, 0, math.MaxInt64, true},
		{math.MaxInt64, 1, 0, false},
		{math.MinInt64, -1, 0, false},
	}
	for _, tt := range tests {
		got, ok := AddPoints(tt.a, tt.b)
		if got != tt.want || ok != tt.ok {
			t.Errorf("AddPoints(%d, %d) = %d, %v; want %d, %v", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMulPoints(t *testing.T) {
	tests := []struct {
		a, b int64
		want int64
		ok   bool
	}{
		{2, 10, 20, true},
		{0, math.MaxInt64, 0, true},
		{1844674407370955161, 10, 0, false},
		{math.MaxInt64 / 10, 10, math.MaxInt64 / 10 * 10, true},
		{-1, 10, 0, false},
	}
	for _, tt := range tests {
		got, ok := MulPoints(tt.a, tt.b)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MulPoints(%d, %d) = %d, %v; want %d, %v", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}
