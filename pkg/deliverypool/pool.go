package deliverypool

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is one live-update delivery. Jobs sharing a Key always run on the same
// worker, so deliveries for a key keep the order in which they were dispatched.
type Job struct {
	Key     string
	Deliver func(ctx context.Context) error
}

type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalDelivered  int64         `json:"total_delivered"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsDelivering  bool  `json:"is_delivering"`
	JobsDelivered int64 `json:"jobs_delivered"`
}

// Pool fans live deliveries out over a fixed set of workers, sharded by key:
// ordered per key, parallel across keys.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	started    int32
	stopped    int32

	totalDispatched int64
	totalDelivered  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id           int
	queue        chan Job
	ctx          context.Context
	cancel       context.CancelFunc
	isDelivering int32
	delivered    int64
	pool         *Pool
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.numWorkers; i++ {
			workerCtx, cancel := context.WithCancel(ctx)
			w := &worker{
				id:     i,
				queue:  make(chan Job, p.queueSize),
				ctx:    workerCtx,
				cancel: cancel,
				pool:   p,
			}
			p.workers[i] = w

			p.wg.Add(1)
			go w.run(&p.wg)
		}
		atomic.StoreInt32(&p.started, 1)
		logrus.Infof("[DELIVERY_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
	})
}

// TryDispatch queues job without blocking and reports whether it was
// accepted. A full queue is not counted as a drop; the caller decides what
// to do with the job.
func (p *Pool) TryDispatch(job Job) bool {
	if atomic.LoadInt32(&p.started) == 0 || atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		logrus.Warnf("[DELIVERY_POOL] Pool not running, dropping delivery for %s", job.Key)
		return false
	}

	shard := p.shardFor(job.Key)
	sent := func() (ok bool) {
		defer func() {
			// queue closed by a concurrent Stop
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].queue <- job:
			return true
		default:
			return false
		}
	}()
	if sent {
		atomic.AddInt64(&p.totalDispatched, 1)
		return true
	}
	logrus.Debugf("[DELIVERY_POOL] Worker %d queue full, delivery for %s not queued", shard, job.Key)
	return false
}

// Dispatch queues job, blocking while the key's worker queue is full. Live
// snapshots must not be silently lost, so this is the default path.
func (p *Pool) Dispatch(ctx context.Context, job Job) bool {
	if atomic.LoadInt32(&p.started) == 0 || atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}
	shard := p.shardFor(job.Key)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].queue <- job:
			return true
		case <-ctx.Done():
			return false
		}
	}()
	if !sent {
		atomic.AddInt64(&p.totalDropped, 1)
	}
	return sent
}

// Stop closes the queues and waits for queued deliveries to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		if atomic.LoadInt32(&p.started) == 0 {
			return
		}
		logrus.Info("[DELIVERY_POOL] Stopping workers...")
		for _, w := range p.workers {
			close(w.queue)
		}
		p.wg.Wait()
		for _, w := range p.workers {
			w.cancel()
		}
		logrus.Info("[DELIVERY_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) GetStats() PoolStats {
	stats := PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalDelivered:  atomic.LoadInt64(&p.totalDelivered),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
	}
	if atomic.LoadInt32(&p.started) == 0 {
		return stats
	}

	stats.WorkerStats = make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		busy := atomic.LoadInt32(&w.isDelivering) == 1
		if busy {
			stats.ActiveWorkers++
		}
		stats.WorkerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.queue),
			IsDelivering:  busy,
			JobsDelivered: atomic.LoadInt64(&w.delivered),
		}
	}
	return stats
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[DELIVERY_POOL] Worker %d started", w.id)

	for job := range w.queue {
		w.deliver(job)
	}
	logrus.Debugf("[DELIVERY_POOL] Worker %d shutting down", w.id)
}

func (w *worker) deliver(job Job) {
	atomic.StoreInt32(&w.isDelivering, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[DELIVERY_POOL] Worker %d panic delivering %s: %v", w.id, job.Key, r)
		}
		atomic.StoreInt32(&w.isDelivering, 0)
		atomic.AddInt64(&w.delivered, 1)
		atomic.AddInt64(&w.pool.totalDelivered, 1)
	}()

	if err := job.Deliver(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[DELIVERY_POOL] Worker %d delivery failed for %s", w.id, job.Key)
	}
}
