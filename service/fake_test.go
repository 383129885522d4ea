package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/chaos-io/rembg/segment"
)

// fakeSegmenter 左半边为前景，mask 固定为 size×size
type fakeSegmenter struct {
	size  int
	err   error
	calls int
	mu    sync.Mutex

	created int
	stats   int
}

func (f *fakeSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	mask := image.NewGray(image.Rect(0, 0, f.size, f.size))
	for y := 0; y < f.size; y++ {
		for x := 0; x < f.size/2; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return mask, nil
}

func (f *fakeSegmenter) Close() error { return nil }

func (f *fakeSegmenter) Maintain() (int, error) {
	f.created++
	return 1, nil
}

func (f *fakeSegmenter) Stats() segment.Stats {
	f.stats++
	return segment.Stats{Backend: "fake", Device: "cpu"}
}

type memoryCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryCache) Close() error { return nil }

var errModel = errors.New("model exploded")
