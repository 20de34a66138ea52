package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/sirupsen/logrus"
)

// ProcessBatchFunc handles one flushed batch.
type ProcessBatchFunc[T any] func(ctx context.Context, items []T) error

type BatchConfig struct {
	Name      string
	BatchSize int
	Delay     time.Duration
}

type BatchStats struct {
	Name           string `json:"name"`
	Pending        int    `json:"pending"`
	Added          int64  `json:"added"`
	Batches        int64  `json:"batches"`
	ProcessedItems int64  `json:"processed_items"`
	FailedBatches  int64  `json:"failed_batches"`
}

type flushRequest struct {
	reply chan error
}

type batchJob[T any] struct {
	items []T
	reply chan error
}

// BatchProcessor groups discrete items and hands them to ProcessBatch when
// BatchSize is reached or Delay has passed since the first pending item.
//
// The buffer and the timer are owned by a single loop goroutine; Add and
// Flush only send messages to it. A flush swaps the buffer for a fresh one
// before processing, and swapped batches are processed in order by a
// separate flusher goroutine, so items added meanwhile are never lost or
// processed twice.
type BatchProcessor[T any] struct {
	cfg     BatchConfig
	process ProcessBatchFunc[T]

	addCh   chan T
	flushCh chan flushRequest
	jobs    chan batchJob[T]
	stopCh  chan struct{}
	loopWg  sync.WaitGroup
	workWg  sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	started   int32
	stopped   int32
	pending   int64

	added          int64
	batches        int64
	processedItems int64
	failedBatches  int64

	// OnError receives failures of size- and timer-triggered flushes, which
	// have no caller to return to.
	OnError func(err error)
}

func NewBatchProcessor[T any](cfg BatchConfig, process ProcessBatchFunc[T]) *BatchProcessor[T] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 300 * time.Millisecond
	}
	if cfg.Name == "" {
		cfg.Name = "batch"
	}
	return &BatchProcessor[T]{
		cfg:     cfg,
		process: process,
		addCh:   make(chan T, cfg.BatchSize*4),
		flushCh: make(chan flushRequest),
		jobs:    make(chan batchJob[T], 16),
		stopCh:  make(chan struct{}),
	}
}

func (p *BatchProcessor[T]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.workWg.Add(1)
		go p.flusher(ctx)
		p.loopWg.Add(1)
		go p.loop()
		atomic.StoreInt32(&p.started, 1)
		logrus.Debugf("[BATCH:%s] Started (size=%d, delay=%s)", p.cfg.Name, p.cfg.BatchSize, p.cfg.Delay)
	})
}

// Add enqueues item. After Stop the item is dropped with a warning.
func (p *BatchProcessor[T]) Add(item T) {
	if atomic.LoadInt32(&p.stopped) == 1 {
		logrus.Warnf("[BATCH:%s] Processor stopped, dropping item", p.cfg.Name)
		return
	}
	select {
	case p.addCh <- item:
		atomic.AddInt64(&p.added, 1)
		atomic.AddInt64(&p.pending, 1)
	case <-p.stopCh:
		logrus.Warnf("[BATCH:%s] Processor stopped, dropping item", p.cfg.Name)
	}
}

// TryAdd enqueues item only if that does not block. It is the path for code
// running on the flusher goroutine, which must never wait on the loop.
func (p *BatchProcessor[T]) TryAdd(item T) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return false
	}
	select {
	case p.addCh <- item:
		atomic.AddInt64(&p.added, 1)
		atomic.AddInt64(&p.pending, 1)
		return true
	default:
		return false
	}
}

// Flush processes whatever is pending right now and returns the result of
// ProcessBatch. It also waits for batches swapped out earlier. Flushing an
// empty buffer is a no-op: ProcessBatch is not called.
func (p *BatchProcessor[T]) Flush(ctx context.Context) error {
	if atomic.LoadInt32(&p.started) == 0 {
		return nil
	}
	req := flushRequest{reply: make(chan error, 1)}
	select {
	case p.flushCh <- req:
	case <-p.stopCh:
		return common.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop flushes what is pending, waits for in-flight batches and returns the
// error of the final flush, if any.
func (p *BatchProcessor[T]) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		if atomic.LoadInt32(&p.started) == 0 {
			close(p.stopCh)
			return
		}
		err = p.Flush(ctx)
		close(p.stopCh)
		p.loopWg.Wait()
		close(p.jobs)
		p.workWg.Wait()
		logrus.Debugf("[BATCH:%s] Stopped", p.cfg.Name)
	})
	return err
}

func (p *BatchProcessor[T]) Stats() BatchStats {
	return BatchStats{
		Name:           p.cfg.Name,
		Pending:        int(atomic.LoadInt64(&p.pending)),
		Added:          atomic.LoadInt64(&p.added),
		Batches:        atomic.LoadInt64(&p.batches),
		ProcessedItems: atomic.LoadInt64(&p.processedItems),
		FailedBatches:  atomic.LoadInt64(&p.failedBatches),
	}
}

func (p *BatchProcessor[T]) loop() {
	defer p.loopWg.Done()

	var buffer []T
	var timer *time.Timer
	var timerC <-chan time.Time

	swap := func(reply chan error) {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(buffer) == 0 && reply == nil {
			return
		}
		items := buffer
		buffer = nil
		atomic.AddInt64(&p.pending, -int64(len(items)))
		p.jobs <- batchJob[T]{items: items, reply: reply}
	}

	for {
		select {
		case item := <-p.addCh:
			buffer = append(buffer, item)
			if len(buffer) >= p.cfg.BatchSize {
				swap(nil)
			} else if timer == nil {
				timer = time.NewTimer(p.cfg.Delay)
				timerC = timer.C
			}
		case <-timerC:
			timer, timerC = nil, nil
			swap(nil)
		case req := <-p.flushCh:
			// items already sitting in addCh were added before this flush
			for drained := false; !drained; {
				select {
				case item := <-p.addCh:
					buffer = append(buffer, item)
				default:
					drained = true
				}
			}
			swap(req.reply)
		case <-p.stopCh:
			for drained := false; !drained; {
				select {
				case item := <-p.addCh:
					buffer = append(buffer, item)
				default:
					drained = true
				}
			}
			swap(nil)
			return
		}
	}
}

func (p *BatchProcessor[T]) flusher(ctx context.Context) {
	defer p.workWg.Done()
	for job := range p.jobs {
		err := p.run(ctx, job.items)
		if job.reply != nil {
			job.reply <- err
		} else if err != nil && p.OnError != nil {
			p.OnError(err)
		}
	}
}

func (p *BatchProcessor[T]) run(ctx context.Context, items []T) (err error) {
	if len(items) == 0 {
		return nil
	}
	atomic.AddInt64(&p.batches, 1)
	defer func() {
		if r := recover(); r != nil {
			err = &common.BatchFlushError{Name: p.cfg.Name, Items: len(items), Err: panicError{r}}
		}
		if err != nil {
			atomic.AddInt64(&p.failedBatches, 1)
			logrus.WithError(err).Errorf("[BATCH:%s] Flush of %d items failed", p.cfg.Name, len(items))
			return
		}
		atomic.AddInt64(&p.processedItems, int64(len(items)))
	}()

	logrus.Debugf("[BATCH:%s] Flushing %d items", p.cfg.Name, len(items))
	if perr := p.process(ctx, items); perr != nil {
		return &common.BatchFlushError{Name: p.cfg.Name, Items: len(items), Err: perr}
	}
	return nil
}

type panicError struct{ value any }

func (e panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }
