package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}
	var hits [100]int32
	For(len(hits), func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestForFallsBackToSequential(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1000}
	order := make([]int, 0, 10)
	For(10, func(i int) { order = append(order, i) }, cfg)
	for i, v := range order {
		if v != i {
			t.Fatalf("sequential fallback out of order at %d: got %d", i, v)
		}
	}
}

func TestForRangesCoverTheFullRange(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 4}
	var total atomic.Int64
	ForRanges(50, func(s, e int) {
		for i := s; i < e; i++ {
			total.Add(int64(i))
		}
	}, cfg)
	if got, want := total.Load(), int64(49*50/2); got != want {
		t.Fatalf("sum over ranges = %d, want %d", got, want)
	}
}
