package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"liuproxy_harvest/internal/shared/config"
	"liuproxy_harvest/internal/shared/types"
	"liuproxy_harvest/proxypool/model"
	"liuproxy_harvest/proxypool/results"
	"liuproxy_harvest/proxypool/scraper"
	"liuproxy_harvest/proxypool/storage"
	"liuproxy_harvest/proxypool/validator"
)

// mockFetcher 按 URL 返回固定内容。
type mockFetcher struct {
	bodies map[string]string
}

func (m *mockFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	body, ok := m.bodies[rawURL]
	if !ok {
		return "", &scraper.FetchError{URL: rawURL, Status: http.StatusNotFound}
	}
	return body, nil
}

type mockDialer struct {
	reachable map[string]bool
}

func (m *mockDialer) DialContext(_ context.Context, _, addr string) (net.Conn, error) {
	if !m.reachable[addr] {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

type refusingDoer struct {
	mu    sync.Mutex
	calls int
}

func (d *refusingDoer) Do(*http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return nil, errors.New("connection refused")
}

type recordingReporter struct {
	mu       sync.Mutex
	started  int
	finished int
	outcomes int
	lastDone int
}

func (r *recordingReporter) RunStarted(string, types.RunMode, int) { r.started++ }
func (r *recordingReporter) RunFinished(results.Summary)          { r.finished++ }
func (r *recordingReporter) OnOutcome(model.Outcome, results.Summary) {
	r.outcomes++
}
func (r *recordingReporter) Progress(done, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if done > r.lastDone {
		r.lastDone = done
	}
}

func testConfig(t *testing.T) *types.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutputConf.Dir = filepath.Join(t.TempDir(), "output")
	cfg.FinderConf.SourcePauseMs = 1
	cfg.FinderConf.BatchPauseMs = 1
	return cfg
}

func newTestManager(t *testing.T, cfg *types.Config, bodies map[string]string) *Manager {
	t.Helper()
	classifier := validator.NewClassifier(validator.Options{
		Dialer: &mockDialer{reachable: map[string]bool{"10.0.0.1:80": true}},
		HTTP:   &refusingDoer{},
	})
	return NewManager(cfg, &mockFetcher{bodies: bodies}, classifier)
}

func TestDiscover_EndToEnd(t *testing.T) {
	vmess := "vmess://" + base64.StdEncoding.EncodeToString([]byte(`{"add":"10.0.0.1","port":"80","id":"u","ps":"v1"}`))
	ss := "ss://user@10.0.0.2:8080"
	bodies := map[string]string{
		"https://example.com/a": vmess + "\n" + ss + "\nnot a link\n",
		"https://example.com/b": base64.StdEncoding.EncodeToString([]byte(ss + "\n" + "vless://id@:443")),
	}

	cfg := testConfig(t)
	m := newTestManager(t, cfg, bodies)
	reporter := &recordingReporter{}
	m.SetReporter(reporter)

	sources := m.BuildSources([]*types.SourceProfile{
		{URL: "https://example.com/a"},
		{Type: "text", URL: "https://example.com/b"},
		{Type: "text", URL: "https://example.com/missing"},
	})

	summary, err := m.Discover(context.Background(), sources)
	if err != nil {
		t.Fatalf("Discover() returned an error: %v", err)
	}

	if !reflect.DeepEqual(summary.Working, []string{vmess}) {
		t.Errorf("Expected working [%s], but got %v", vmess, summary.Working)
	}
	if !reflect.DeepEqual(summary.Potential, []string{ss}) {
		t.Errorf("Expected potential [%s], but got %v", ss, summary.Potential)
	}
	if summary.Total != 3 || summary.PersistErrors != 0 {
		t.Errorf("Expected total=3 persistErrors=0, but got %+v", summary)
	}

	all, _ := os.ReadFile(filepath.Join(cfg.OutputConf.Dir, "all_configs.txt"))
	if !strings.Contains(string(all), "# Total configs: 3") || !strings.Contains(string(all), "3. vless://id@:443") {
		t.Errorf("Unexpected all_configs.txt:\n%s", all)
	}
	working, _ := os.ReadFile(filepath.Join(cfg.OutputConf.Dir, "working_configs.txt"))
	if !strings.Contains(string(working), "1. "+vmess) {
		t.Errorf("Unexpected working_configs.txt:\n%s", working)
	}
	potential, _ := os.ReadFile(filepath.Join(cfg.OutputConf.Dir, "potential_configs.txt"))
	if !strings.Contains(string(potential), "1. "+ss) {
		t.Errorf("Unexpected potential_configs.txt:\n%s", potential)
	}

	if reporter.started != 1 || reporter.finished != 1 || reporter.outcomes != 2 || reporter.lastDone != 3 {
		t.Errorf("Unexpected reporter events: %+v", reporter)
	}
}

func TestEnumerate_PersistsWithoutProbing(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg, map[string]string{"https://example.com/a": "trojan://pw@h:1\ntrojan://pw@h:1\n"})

	raws, err := m.Enumerate(context.Background(), m.BuildSources([]*types.SourceProfile{{URL: "https://example.com/a"}}))
	if err != nil {
		t.Fatalf("Enumerate() returned an error: %v", err)
	}
	if len(raws) != 1 {
		t.Errorf("Expected 1 unique candidate, but got %v", raws)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputConf.Dir, "working_configs.txt")); !os.IsNotExist(err) {
		t.Error("Expected no working file in enumerate-only mode")
	}
}

func TestReplay_UsesLocalPrefix(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg, nil)

	input := filepath.Join(t.TempDir(), "all_configs.txt")
	content := "# All Found V2ray Configurations (Not Tested)\n\n1. trojan://pw@10.0.0.1:80\n2. trojan://pw@10.0.0.9:443\n3. trojan://pw@10.0.0.1:80\n"
	if err := os.WriteFile(input, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := m.Replay(context.Background(), input)
	if err != nil {
		t.Fatalf("Replay() returned an error: %v", err)
	}
	if len(summary.Working) != 1 || len(summary.Potential) != 1 || summary.Total != 2 {
		t.Errorf("Unexpected replay summary: %+v", summary)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputConf.Dir, "local_working_configs.txt"))
	if err != nil {
		t.Fatalf("Expected local_working_configs.txt to exist: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Local V2ray Working Configurations") {
		t.Errorf("Unexpected local working file:\n%s", data)
	}

	if _, err := m.Replay(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected an error for a missing replay file")
	}
}

func TestBuildSources_SkipsUnknownTypes(t *testing.T) {
	m := newTestManager(t, testConfig(t), nil)
	sources := m.BuildSources([]*types.SourceProfile{
		{Type: "page", URL: "https://example.com/p"},
		{Type: "telegram", URL: "v2ray_channel"},
		{Type: "carrier-pigeon", URL: "x"},
	})
	if len(sources) != 2 {
		t.Fatalf("Expected 2 sources, but got %d", len(sources))
	}
	if sources[1].Name() != "t.me/v2ray_channel" {
		t.Errorf("Unexpected telegram source name: %s", sources[1].Name())
	}
}

func TestReplay_MirrorsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := storage.NewRedisStorage(mr.Addr(), "", 0, "harvest")
	if err != nil {
		t.Fatalf("NewRedisStorage() returned an error: %v", err)
	}
	defer rs.Close()

	cfg := testConfig(t)
	m := newTestManager(t, cfg, nil)
	m.SetMirror(rs)

	input := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(input, []byte("trojan://pw@10.0.0.1:80\ntrojan://pw@10.0.0.9:443\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Replay(context.Background(), input); err != nil {
		t.Fatalf("Replay() returned an error: %v", err)
	}

	working, err := mr.List("harvest:local_:working")
	if err != nil {
		t.Fatalf("Failed to read mirrored list: %v", err)
	}
	if !reflect.DeepEqual(working, []string{"trojan://pw@10.0.0.1:80"}) {
		t.Errorf("Expected the working link in Redis, but got %v", working)
	}
	if title := mr.HGet("harvest:local_:potential:meta", "title"); title != "Local V2ray Potential Configurations" {
		t.Errorf("Unexpected mirrored title: %s", title)
	}
}

func TestReporters_FanOut(t *testing.T) {
	a, b := &recordingReporter{}, &recordingReporter{}
	rs := Reporters{a, b}

	rs.RunStarted("run", types.ModeDiscover, 2)
	rs.Progress(1, 2)
	rs.OnOutcome(model.Outcome{}, results.Summary{})
	rs.RunFinished(results.Summary{})

	for i, r := range []*recordingReporter{a, b} {
		if r.started != 1 || r.lastDone != 1 || r.outcomes != 1 || r.finished != 1 {
			t.Errorf("Reporter %d missed events: %+v", i, r)
		}
	}
}
