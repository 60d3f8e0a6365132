package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/producer"
	"qihuo/internal/types"

	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 60 * time.Second

// Policy 控制并发度与每个模块的超时。
type Policy struct {
	MaxConcurrent  int
	Timeouts       map[string]time.Duration
	DefaultTimeout time.Duration
}

// PolicyFromConfig 从配置提取协调策略。
func PolicyFromConfig(cfg *config.Config) Policy {
	p := Policy{
		MaxConcurrent: cfg.Global.MaxConcurrentProducers,
		Timeouts:      make(map[string]time.Duration, len(cfg.Producers)),
	}
	for id, pc := range cfg.Producers {
		p.Timeouts[id] = pc.Timeout()
	}
	return p
}

func (p Policy) Timeout(id string) time.Duration {
	if d, ok := p.Timeouts[id]; ok && d > 0 {
		return d
	}
	if p.DefaultTimeout > 0 {
		return p.DefaultTimeout
	}
	return defaultTimeout
}

// Coordinator 并发调度所有分析模块，每个模块独立超时，互不影响。
type Coordinator struct {
	now func() time.Time
}

func New() *Coordinator {
	return &Coordinator{now: time.Now}
}

// Run 永不返回错误：每个模块的结果都带状态，顺序与请求中的模块顺序一致。
func (c *Coordinator) Run(ctx context.Context, req types.AnalysisRequest, producers []producer.Producer, policy Policy) types.CoordinatorResult {
	byID := make(map[string]producer.Producer, len(producers))
	for _, p := range producers {
		if p != nil {
			byID[p.ID()] = p
		}
	}
	out := types.CoordinatorResult{
		Results:   make([]types.ProducerResult, len(req.Producers)),
		StartedAt: c.now(),
	}
	eg := new(errgroup.Group)
	if policy.MaxConcurrent > 0 {
		eg.SetLimit(policy.MaxConcurrent)
	}
	for i, id := range req.Producers {
		i, id := i, id
		p, ok := byID[id]
		if !ok {
			out.Results[i] = types.ProducerResult{ProducerID: id, Status: types.StatusFailed, Error: "producer not configured"}
			continue
		}
		q := producer.Query{Instrument: req.Instrument, AsOf: req.AsOf, ProducerID: id}
		eg.Go(func() error {
			out.Results[i] = c.runOne(ctx, p, q, policy.Timeout(id))
			return nil
		})
	}
	_ = eg.Wait()
	out.FinishedAt = c.now()

	for _, r := range out.Results {
		entry := logger.With("producer", r.ProducerID, "status", string(r.Status), "elapsed", r.Elapsed.Truncate(time.Millisecond))
		if r.Succeeded() {
			entry.Infof("模块完成 signal=%s confidence=%.2f", r.Signal, r.Confidence)
		} else {
			entry.Warnf("模块未成功: %s", r.Error)
		}
	}
	return out
}

type unitResult struct {
	out producer.Output
	err error
}

func (c *Coordinator) runOne(parent context.Context, p producer.Producer, q producer.Query, timeout time.Duration) types.ProducerResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := c.now()
	res := types.ProducerResult{ProducerID: q.ProducerID}
	// 缓冲为 1：超时后迟到的结果直接丢弃，goroutine 不会阻塞
	done := make(chan unitResult, 1)
	go func() {
		done <- invokeSafe(ctx, p, q)
	}()

	select {
	case r := <-done:
		res.Elapsed = c.now().Sub(start)
		switch {
		case r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil:
			res.Status = types.StatusTimeout
			res.Error = fmt.Sprintf("timeout after %s", timeout)
		case r.err != nil:
			res.Status = types.StatusFailed
			res.Error = r.err.Error()
		default:
			if err := r.out.Validate(); err != nil {
				res.Status = types.StatusFailed
				res.Error = err.Error()
				return res
			}
			res.Status = types.StatusSuccess
			res.Signal = r.out.Signal
			res.Confidence = r.out.Confidence
			res.Rationale = r.out.Rationale
		}
	case <-ctx.Done():
		res.Elapsed = c.now().Sub(start)
		res.Status = types.StatusTimeout
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			res.Error = fmt.Sprintf("timeout after %s", timeout)
		} else {
			res.Error = ctx.Err().Error()
		}
	}
	return res
}

func invokeSafe(ctx context.Context, p producer.Producer, q producer.Query) (r unitResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warnf("模块 %s panic: %v", p.ID(), rec)
			r = unitResult{err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	out, err := p.Produce(ctx, q)
	return unitResult{out: out, err: err}
}
