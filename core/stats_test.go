package core

import (
	"math"
	"testing"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"odd", []float64{300, 100, 200}, 200},
		{"even", []float64{400, 100, 200, 300}, 250},
		{"single", []float64{7}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.values); got != tt.want {
				t.Errorf("Median() = %v, want %v", got, tt.want)
			}
		})
	}

	values := []float64{3, 1, 2}
	Median(values)
	if values[0] != 3 {
		t.Error("Median() reordered its input")
	}
}

func TestMeanAndMode(t *testing.T) {
	if got := Mean([]float64{100, 200, 600}); got != 300 {
		t.Errorf("Mean() = %v, want 300", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := Mode([]string{"USD", "UZS", "USD"}); got != "USD" {
		t.Errorf("Mode() = %q, want USD", got)
	}
	if got := Mode([]string{"UZS", "USD"}); got != "UZS" {
		t.Errorf("Mode() tie = %q, want first seen", got)
	}
	if !SameCurrency("usd", " USD") {
		t.Error("SameCurrency() should ignore case and spaces")
	}
}

func TestVectorHelpers(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeVector() = %v", v)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{2, 0}); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("CosineSimilarity(parallel) = %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("CosineSimilarity(orthogonal) = %v", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("CosineSimilarity(zero) = %v", got)
	}
}
