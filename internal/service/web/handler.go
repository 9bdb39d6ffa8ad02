package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"liuproxy_harvest/internal/shared/types"
	"liuproxy_harvest/proxypool/geo"
	"liuproxy_harvest/proxypool/model"
	"liuproxy_harvest/proxypool/results"
)

// OutcomeEvent 是 outcome 消息携带的数据
type OutcomeEvent struct {
	RunID   string `json:"runId"`
	Raw     string `json:"raw"`
	Label   string `json:"label"`
	Scheme  string `json:"scheme"`
	State   string `json:"state"`
	Stage   string `json:"stage"`
	Country string `json:"country,omitempty"`
}

// ProgressEvent 是 progress 消息携带的数据
type ProgressEvent struct {
	RunID string `json:"runId"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Feed 记录当前运行的状态，并把运行事件推送到 Hub。
// 它同时实现了 results.Observer。
type Feed struct {
	hub     *Hub
	locator geo.Locator
	mu      sync.RWMutex
	status  types.RunStatus
}

var _ results.Observer = (*Feed)(nil)

// NewFeed 创建一个 Feed。hub 为 nil 时只记录状态不推送。
func NewFeed(hub *Hub) *Feed {
	return &Feed{hub: hub}
}

// SetLocator 设置国家代码解析器，outcome 消息会带上 country 字段。
func (f *Feed) SetLocator(l geo.Locator) {
	f.locator = l
}

// Status returns a copy of the current run status.
func (f *Feed) Status() types.RunStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Feed) RunStarted(runID string, mode types.RunMode, total int) {
	f.mu.Lock()
	f.status = types.RunStatus{
		RunID:     runID,
		Mode:      mode,
		Running:   true,
		Total:     total,
		StartedAt: time.Now().UTC(),
	}
	status := f.status
	f.mu.Unlock()

	f.broadcast(MessageRunStarted, status)
}

func (f *Feed) Progress(done, total int) {
	f.mu.Lock()
	if done > f.status.Done {
		f.status.Done = done
	}
	f.status.Total = total
	runID := f.status.RunID
	f.mu.Unlock()

	f.broadcast(MessageProgress, ProgressEvent{RunID: runID, Done: done, Total: total})
}

func (f *Feed) OnOutcome(o model.Outcome, s results.Summary) {
	f.mu.Lock()
	f.status.Working = len(s.Working)
	f.status.Potential = len(s.Potential)
	f.status.Failed = s.Failed
	runID := f.status.RunID
	f.mu.Unlock()

	ev := OutcomeEvent{RunID: runID, State: o.State.String(), Stage: o.Stage.String()}
	if o.Descriptor != nil {
		ev.Raw = o.Descriptor.Raw()
		ev.Label = o.Descriptor.Label()
		ev.Scheme = string(o.Descriptor.Scheme())
		if f.locator != nil {
			ev.Country = f.locator.Country(o.Descriptor.Address())
		}
	}
	f.broadcast(MessageOutcome, ev)
}

func (f *Feed) RunFinished(s results.Summary) {
	f.mu.Lock()
	f.status.Running = false
	f.status.Working = len(s.Working)
	f.status.Potential = len(s.Potential)
	f.status.Failed = s.Failed
	f.status.FinishedAt = time.Now().UTC()
	status := f.status
	f.mu.Unlock()

	f.broadcast(MessageRunFinished, status)
}

func (f *Feed) broadcast(msgType string, data interface{}) {
	if f.hub != nil {
		f.hub.Broadcast(msgType, data)
	}
}

// Handler 处理 HTTP API 请求
type Handler struct {
	feed *Feed
}

func NewHandler(feed *Feed) *Handler {
	return &Handler{feed: feed}
}

// HandleStatus 处理 GET /api/status 请求，返回当前或最近一次运行的状态
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.feed.Status())
}
