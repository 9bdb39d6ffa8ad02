package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/proxypool/model"
	"liuproxy_harvest/proxypool/parser"
)

const (
	DefaultBatchSize  = 10
	DefaultBatchPause = 100 * time.Millisecond
)

// Classifier 是调度器依赖的探测接口，由 validator.Classifier 实现。
type Classifier interface {
	Classify(ctx context.Context, d *model.Descriptor) model.Outcome
}

// Scheduler 以固定大小的批次并发处理候选链接，批次之间串行。
type Scheduler struct {
	classifier Classifier
	batchSize  int
	pause      time.Duration

	// Progress is called after every item finishes, parse failures included.
	// It may be called from several goroutines at once.
	Progress func(done, total int)
	// OnBatch is called when a batch starts.
	OnBatch func(index, size int)

	processed atomic.Int64
}

// New 创建一个新的 Scheduler。batchSize <= 0 时使用默认值；
// pause < 0 使用 DefaultBatchPause，pause == 0 表示批次之间不停顿。
func New(classifier Classifier, batchSize int, pause time.Duration) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pause < 0 {
		pause = DefaultBatchPause
	}
	return &Scheduler{
		classifier: classifier,
		batchSize:  batchSize,
		pause:      pause,
	}
}

// Processed returns how many items of the current run have finished.
func (s *Scheduler) Processed() int {
	return int(s.processed.Load())
}

// Run starts processing raws and returns the outcome stream. The channel is
// closed after the last batch; outcomes of unparseable items are never sent.
// Cancelling ctx stops further batches; the batch in flight is still probed
// to completion.
func (s *Scheduler) Run(ctx context.Context, raws []string) <-chan model.Outcome {
	out := make(chan model.Outcome, s.batchSize)
	s.processed.Store(0)

	go func() {
		defer close(out)
		s.run(ctx, raws, out)
	}()
	return out
}

func (s *Scheduler) run(ctx context.Context, raws []string, out chan<- model.Outcome) {
	l := logger.WithComponent("Harvest/Scheduler")
	total := len(raws)
	batches := (total + s.batchSize - 1) / s.batchSize

	l.Info().Int("total", total).Int("batch_size", s.batchSize).Int("batches", batches).Msg("Starting probe run...")

	for index := 0; index < batches; index++ {
		if ctx.Err() != nil {
			l.Warn().Err(ctx.Err()).Int("next_batch", index).Msg("Probe run cancelled.")
			return
		}

		start := index * s.batchSize
		end := start + s.batchSize
		if end > total {
			end = total
		}
		batch := raws[start:end]

		if s.OnBatch != nil {
			s.OnBatch(index, len(batch))
		}
		l.Debug().Int("batch", index+1).Int("size", len(batch)).Msg("Processing batch...")

		// errgroup 只用于等待，单个条目的失败不会取消同批的其它条目。
		var g errgroup.Group
		for _, raw := range batch {
			g.Go(func() error {
				s.processOne(ctx, raw, total, out)
				return nil
			})
		}
		_ = g.Wait()

		if s.pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.pause):
			}
		}
	}

	l.Info().Int("processed", s.Processed()).Msg("Probe run finished.")
}

func (s *Scheduler) processOne(ctx context.Context, raw string, total int, out chan<- model.Outcome) {
	defer func() {
		done := int(s.processed.Add(1))
		if s.Progress != nil {
			s.Progress(done, total)
		}
	}()

	d, err := parser.Parse(raw)
	if err != nil {
		l := logger.WithComponent("Harvest/Scheduler")
		l.Debug().Err(err).Msg("Dropping unparseable candidate.")
		return
	}
	out <- s.classifier.Classify(context.WithoutCancel(ctx), d)
}
