package distributor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/jpegenc"
	"github.com/Akash9179/Project-Argus/internal/metrics"
	"github.com/Akash9179/Project-Argus/internal/model"
)

const sinkBuffer = 8

// Distributor is the single consumer of the capture queue. Each frame is
// JPEG-encoded once, published to the cache, and offered to every subscribed
// sink without blocking. Sinks that fall behind miss frames, they never stall
// the pipeline.
type Distributor struct {
	queue   <-chan *model.Frame
	cache   *Cache
	logger  *zap.Logger
	quality int

	mu    sync.Mutex
	sinks map[int]chan *model.Frame
	next  int
}

func New(queue <-chan *model.Frame, cache *Cache, logger *zap.Logger) *Distributor {
	return &Distributor{
		queue:   queue,
		cache:   cache,
		logger:  logger.Named("distributor"),
		quality: jpegenc.DefaultQuality,
		sinks:   make(map[int]chan *model.Frame),
	}
}

// Subscribe registers a raw-frame sink, for consumers that want pixels before
// encoding. The returned func unsubscribes.
func (d *Distributor) Subscribe() (<-chan *model.Frame, func()) {
	ch := make(chan *model.Frame, sinkBuffer)
	d.mu.Lock()
	id := d.next
	d.next++
	d.sinks[id] = ch
	d.mu.Unlock()

	return ch, func() {
		d.mu.Lock()
		delete(d.sinks, id)
		d.mu.Unlock()
	}
}

// Run consumes until the context is cancelled.
func (d *Distributor) Run(ctx context.Context) {
	d.logger.Info("distributor started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("distributor stopped")
			return
		case frame := <-d.queue:
			if frame == nil {
				continue
			}
			metrics.QueueDepth.Set(float64(len(d.queue)))
			d.dispatch(frame)
		}
	}
}

func (d *Distributor) dispatch(frame *model.Frame) {
	jpg, err := jpegenc.Encode(frame, d.quality)
	if err != nil {
		metrics.EncodeFailures.Inc()
		d.logger.Warn("encode failed",
			zap.String("source_id", frame.SourceID.String()),
			zap.Error(err))
		// A malformed frame usually means an upstream glitch; back off a
		// touch so a broken source cannot spin this loop hot.
		time.Sleep(10 * time.Millisecond)
		return
	}
	d.cache.Set(frame.SourceID, jpg)
	metrics.FramesDistributed.Inc()

	d.mu.Lock()
	for _, ch := range d.sinks {
		select {
		case ch <- frame:
		default:
		}
	}
	d.mu.Unlock()
}
