package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlackNotifierSuccess(t *testing.T) {
	var received postMessageRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "chat.postMessage") {
			t.Fatalf("路径应包含 chat.postMessage, 实际 %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(SlackOptions{Token: "xoxb-token", BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	msg := Message{
		Title:     "Whale alert",
		Link:      "https://optimistic.etherscan.io/tx/0xabc",
		Color:     "good",
		Fields:    []Field{{Label: "amount", Value: "100 DAI", Short: true}},
		Timestamp: time.Unix(1_700_000_000, 0),
	}

	if err := notifier.Send(context.Background(), "C012345", msg); err != nil {
		t.Fatalf("Slack Send 应成功: %v", err)
	}

	if auth != "Bearer xoxb-token" {
		t.Fatalf("Authorization 头不正确: %s", auth)
	}
	if received.Channel != "C012345" {
		t.Fatalf("channel 不正确: %#v", received)
	}
	if len(received.Attachments) != 1 || received.Attachments[0].Title != "Whale alert" {
		t.Fatalf("attachment 不正确: %#v", received.Attachments)
	}
	if received.Attachments[0].TS != 1_700_000_000 {
		t.Fatalf("ts 应为消息时间戳: %d", received.Attachments[0].TS)
	}
}

func TestSlackNotifierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(SlackOptions{Token: "token", BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	err := notifier.Send(context.Background(), "C0", Message{Title: "x"})
	if err == nil {
		t.Fatal("ok=false 应报错")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("错误应包含 API 原因: %v", err)
	}
}

func TestSlackNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(SlackOptions{Token: "token", BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if err := notifier.Send(context.Background(), "C0", Message{Title: "x"}); err == nil {
		t.Fatal("HTTP 502 应报错")
	}
}
