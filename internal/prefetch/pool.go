package prefetch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iCreck/NewsBlur/internal/imagecache"
)

// Job 表示一次预热任务：把某个 Bucket 的一张图片拉到本地。
type Job struct {
	Bucket string
	URL    string
	Cache  *imagecache.Cache
}

// Options 控制工作协程数量、队列长度与可选限速。
type Options struct {
	Workers   int
	QueueSize int
	Rate      float64 // 每秒请求数，0 表示不限速
	Burst     int
	Logger    *logrus.Logger
}

// Pool 维护一组预热协程，从有界队列消费任务。重复 URL 依赖缓存自身的
// 存在性短路，不在这里去重。
type Pool struct {
	jobs    chan Job
	logger  *logrus.Logger
	limiter *rate.Limiter
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool 启动 worker 并返回池实例。
func NewPool(opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	pool := &Pool{
		jobs:   make(chan Job, queueSize),
		logger: logger,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		// 批量预热不要把图片站打挂。
		pool.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

// Enqueue 尝试把任务放入队列，队列已满或池已关闭时立即返回 false，
// 绝不阻塞调用方。
func (p *Pool) Enqueue(job Job) bool {
	if job.Cache == nil || job.URL == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.WithFields(logrus.Fields{
			"action": "prefetch",
			"bucket": job.Bucket,
		}).Warn("prefetch_queue_full")
		return false
	}
}

// Pending 返回当前排队中的任务数量，供诊断接口使用。
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Close 关闭队列入口并等待已入队任务全部执行完毕。
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		if p.limiter != nil {
			if err := p.limiter.Wait(context.Background()); err != nil {
				continue
			}
		}
		job.Cache.CacheImage(context.Background(), job.URL)
	}
}
