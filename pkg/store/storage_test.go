package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestChunkRange(t *testing.T) {
	type window struct{ start, end int }

	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      []window
	}{
		{"empty", 0, 10, nil},
		{"single partial chunk", 3, 10, []window{{0, 3}}},
		{"exact chunks", 4, 2, []window{{0, 2}, {2, 4}}},
		{"trailing partial chunk", 5, 2, []window{{0, 2}, {2, 4}, {4, 5}}},
		{"zero chunk size covers all", 3, 0, []window{{0, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []window
			err := ChunkRange(tt.total, tt.chunkSize, func(start, end int) error {
				got = append(got, window{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("windows = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 2, func(start, end int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}
