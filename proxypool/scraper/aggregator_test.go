package scraper

import (
	"context"
	"encoding/base64"
	"errors"
	"reflect"
	"testing"
	"time"
)

// staticSource 是一个返回固定内容的 mock Source。
type staticSource struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Raw(_ context.Context) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestExtractCandidates_KeepsOnlyPrefixedLines(t *testing.T) {
	text := "hello\n  vmess://abc  \nhttp://x\n\nss://A\r\n# vless://commented\ntrojan://pw@h:1\nsocks5://1.2.3.4:1080"

	got := ExtractCandidates(text)
	want := []string{"vmess://abc", "ss://A", "trojan://pw@h:1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
}

func TestCollect_DedupAcrossSources(t *testing.T) {
	a := &Aggregator{}
	s1 := &staticSource{name: "one", text: "ss://A\nss://A"}
	s2 := &staticSource{name: "two", text: "vmess://B\nss://A"}

	got, report := a.Collect(context.Background(), []Source{s1, s2})
	want := []string{"ss://A", "vmess://B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
	if report.Unique != 2 {
		t.Errorf("Expected report.Unique to be 2, but got %d", report.Unique)
	}
	if len(report.Sources) != 2 || report.Sources[0].Candidates != 2 || report.Sources[1].Candidates != 2 {
		t.Errorf("Unexpected per-source report: %+v", report.Sources)
	}
}

func TestCollect_FailingSourceContributesNothing(t *testing.T) {
	a := &Aggregator{}
	bad := &staticSource{name: "bad", err: errors.New("boom")}
	good := &staticSource{name: "good", text: "trojan://x@y:1"}

	got, report := a.Collect(context.Background(), []Source{bad, good})
	if len(got) != 1 || got[0] != "trojan://x@y:1" {
		t.Errorf("Expected the good source's candidate only, but got %v", got)
	}
	if report.Sources[0].Err == nil {
		t.Error("Expected the failing source to be reported with its error")
	}
	if good.calls != 1 {
		t.Errorf("Expected the source after a failure to be read once, but got %d", good.calls)
	}
}

func TestCollect_Base64Subscription(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("vmess://one\nvless://two@h:443"))
	src := &staticSource{name: "sub", text: encoded + "\n"}

	a := &Aggregator{DecodeBase64: true}
	got, _ := a.Collect(context.Background(), []Source{src})
	want := []string{"vmess://one", "vless://two@h:443"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}

	a.DecodeBase64 = false
	got, _ = a.Collect(context.Background(), []Source{src})
	if len(got) != 0 {
		t.Errorf("Expected no candidates with decoding disabled, but got %v", got)
	}
}

func TestDecodeSubscription_RejectsTextWithoutLinks(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("just some words"))
	if _, ok := DecodeSubscription(encoded); ok {
		t.Error("Expected a decode without scheme prefixes to be rejected")
	}
	if _, ok := DecodeSubscription("vmess://plain"); ok {
		t.Error("Expected plain text not to be treated as base64")
	}
	if _, ok := DecodeSubscription(base64.StdEncoding.EncodeToString([]byte{0xff, 's', 's', ':', '/', '/'})); ok {
		t.Error("Expected invalid UTF-8 to be rejected")
	}
}

func TestCollect_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &staticSource{name: "first", text: "ss://A"}
	second := &staticSource{name: "second", text: "ss://B"}

	a := &Aggregator{Pause: time.Hour}
	done := make(chan []string)
	go func() {
		got, _ := a.Collect(ctx, []Source{first, second})
		done <- got
	}()

	// first source is read before the pause starts
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case got := <-done:
		if len(got) != 1 || got[0] != "ss://A" {
			t.Errorf("Expected only the first source's candidate, but got %v", got)
		}
		if second.calls != 0 {
			t.Errorf("Expected the second source not to be read, but got %d calls", second.calls)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Collect did not return after cancellation")
	}
}

func TestCleanPersistedLines(t *testing.T) {
	text := `# All Configurations
# Generated on: Mon, 02 Jan 2006 15:04:05 UTC
# Total configs: 3

1. vmess://abc
2. ss://A
==========
node-1: vless://id@h:443#x
garbage line
# End of file - 2006-01-02T15:04:05Z
`
	got := CleanPersistedLines(text)
	want := []string{"vmess://abc", "ss://A", "vless://id@h:443#x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
}
