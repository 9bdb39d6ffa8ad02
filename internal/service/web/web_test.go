package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"liuproxy_harvest/internal/shared/types"
	"liuproxy_harvest/proxypool/geo"
	"liuproxy_harvest/proxypool/model"
	"liuproxy_harvest/proxypool/results"
)

func TestStatus_RequiresBasicAuth(t *testing.T) {
	feed := NewFeed(nil)
	feed.RunStarted("run-1", types.ModeDiscover, 3)
	feed.Progress(2, 3)

	server := httptest.NewServer(NewMux(types.WebConf{User: "admin", Password: "secret"}, NewHub(), feed))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, but got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	defer resp.Body.Close()

	var status types.RunStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.RunID != "run-1" || status.Done != 2 || status.Total != 3 || !status.Running {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestHub_BroadcastsRunEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	feed := NewFeed(hub)
	feed.SetLocator(geo.Static{"10.0.0.1": "ZZ"})

	server := httptest.NewServer(NewMux(types.WebConf{}, hub, feed))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	d := model.NewDescriptor(model.SchemeVMess, "10.0.0.1", 80, "", "vmess://x", model.VMessPayload{})
	feed.RunStarted("run-2", types.ModeReplay, 1)
	feed.OnOutcome(model.Outcome{Descriptor: d, State: model.StateWorking, Stage: model.StageTCP}, results.Summary{Working: []string{"vmess://x"}})
	feed.RunFinished(results.Summary{Working: []string{"vmess://x"}, Total: 1})

	var received []string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(received) < 3 {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() failed after %v: %v", received, err)
		}
		received = append(received, msg.Type)

		if msg.Type == MessageOutcome {
			var ev OutcomeEvent
			_ = json.Unmarshal(msg.Data, &ev)
			if ev.Raw != "vmess://x" || ev.State != "working" || ev.RunID != "run-2" || ev.Country != "ZZ" {
				t.Errorf("Unexpected outcome event: %+v", ev)
			}
		}
	}

	want := []string{MessageRunStarted, MessageOutcome, MessageRunFinished}
	for i := range want {
		if received[i] != want[i] {
			t.Errorf("Expected message %d to be %s, but got %s", i, want[i], received[i])
		}
	}
	if feed.Status().Running {
		t.Error("Expected the run to be marked finished")
	}
}
