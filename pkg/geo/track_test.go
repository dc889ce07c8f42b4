package geo

import (
	"math"
	"testing"
)

func TestHeadingBuffer(t *testing.T) {
	tests := []struct {
		name       string
		windowSize int
		minStepM   float64
		points     []Point
		wantCourse []float64 // Expected course after EACH push
	}{
		{
			name:       "Standard 3-Sample Window",
			windowSize: 3,
			points: []Point{
				{Lat: 10, Lon: 20},
				{Lat: 11, Lon: 20},
				{Lat: 11, Lon: 21},
				{Lat: 10, Lon: 21},
			},
			wantCourse: []float64{99, 0, 45, 135},
		},
		{
			name:       "Jitter Ignored",
			windowSize: 3,
			minStepM:   5,
			points: []Point{
				{Lat: 50.8878, Lon: 5.9683},
				{Lat: 50.88781, Lon: 5.9683}, // ~1 m, dropped
				{Lat: 50.8888, Lon: 5.9683},  // ~111 m north
			},
			wantCourse: []float64{99, 99, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewHeadingBuffer(tt.windowSize, tt.minStepM)
			for i, p := range tt.points {
				got := b.Push(p, 99)
				if math.Abs(got-tt.wantCourse[i]) > 1.0 {
					t.Errorf("Step %d: Push() = %v, want approx %v", i, got, tt.wantCourse[i])
				}
			}
		})
	}
}

func TestHeadingBuffer_Reset(t *testing.T) {
	b := NewHeadingBuffer(5, 0)
	b.Push(Point{10, 20}, 0)
	b.Push(Point{11, 20}, 0)

	if len(b.samples) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(b.samples))
	}

	b.Reset()
	if len(b.samples) != 0 {
		t.Errorf("Expected 0 samples after reset, got %d", len(b.samples))
	}
	if got := b.Course(7); got != 7 {
		t.Errorf("Course() after reset = %v, want fallback 7", got)
	}
}
