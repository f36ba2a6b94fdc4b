package distributor

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/model"
)

func testFrame(id uuid.UUID, seq uint64) *model.Frame {
	return &model.Frame{
		SourceID:  id,
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
		Image:     make([]byte, 8*6*3),
		Width:     8,
		Height:    6,
		Channels:  3,
	}
}

func TestDistributorCachesLatestFrame(t *testing.T) {
	queue := make(chan *model.Frame, 8)
	cache := NewCache()
	d := New(queue, cache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	id := uuid.New()
	queue <- testFrame(id, 1)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(id)
		return ok
	}, time.Second, 10*time.Millisecond)

	jpg, _ := cache.Get(id)
	img, err := jpeg.Decode(bytes.NewReader(jpg))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestDistributorOverwritesPerSource(t *testing.T) {
	queue := make(chan *model.Frame, 8)
	cache := NewCache()
	d := New(queue, cache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	a, b := uuid.New(), uuid.New()
	queue <- testFrame(a, 1)
	queue <- testFrame(a, 2)
	queue <- testFrame(b, 1)

	require.Eventually(t, func() bool {
		return cache.Len() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDistributorSkipsBadFrames(t *testing.T) {
	queue := make(chan *model.Frame, 8)
	cache := NewCache()
	d := New(queue, cache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	id := uuid.New()
	bad := testFrame(id, 1)
	bad.Image = bad.Image[:10] // truncated buffer
	queue <- bad
	queue <- testFrame(id, 2)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(id)
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, cache.Len())
}

func TestSubscribeReceivesRawFrames(t *testing.T) {
	queue := make(chan *model.Frame, 8)
	d := New(queue, NewCache(), zap.NewNop())

	sink, unsubscribe := d.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	id := uuid.New()
	queue <- testFrame(id, 7)

	select {
	case f := <-sink:
		assert.Equal(t, id, f.SourceID)
		assert.Equal(t, uint64(7), f.Sequence)
	case <-time.After(time.Second):
		t.Fatal("sink did not receive frame")
	}

	unsubscribe()
	queue <- testFrame(id, 8)
	time.Sleep(50 * time.Millisecond)
	select {
	case f := <-sink:
		// A frame already buffered before unsubscribe is acceptable.
		assert.Equal(t, id, f.SourceID)
	default:
	}
}

func TestCacheDelete(t *testing.T) {
	cache := NewCache()
	id := uuid.New()
	cache.Set(id, []byte{0xFF, 0xD8})
	_, ok := cache.Get(id)
	require.True(t, ok)

	cache.Delete(id)
	_, ok = cache.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}
