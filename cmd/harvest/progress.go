package main

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"

	"liuproxy_harvest/internal/shared/types"
	"liuproxy_harvest/proxypool/model"
	"liuproxy_harvest/proxypool/results"
)

// barReporter 在终端上显示探测进度条。
type barReporter struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	done int
}

func (b *barReporter) RunStarted(runID string, mode types.RunMode, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = 0
	b.bar = progressbar.Default(int64(total), fmt.Sprintf("%s %.8s", mode, runID))
}

// Progress 可能被多个 goroutine 乱序调用，只前进不后退。
func (b *barReporter) Progress(done, _ int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil || done <= b.done {
		return
	}
	b.done = done
	_ = b.bar.Set(done)
}

func (b *barReporter) OnOutcome(model.Outcome, results.Summary) {}

func (b *barReporter) RunFinished(s results.Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("working %d, potential %d", len(s.Working), len(s.Potential)))
	_ = b.bar.Finish()
	fmt.Println()
}
