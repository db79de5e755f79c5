package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/secrets"
)

type fakeNotifier struct {
	mu      sync.Mutex
	sent    map[string][]Message
	failing map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]Message), failing: make(map[string]error)}
}

func (f *fakeNotifier) Send(ctx context.Context, channel string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[channel]; ok {
		return err
	}
	f.sent[channel] = append(f.sent[channel], msg)
	return nil
}

func testRouter() *Router {
	return NewRouter(secrets.Static{
		"SLACK_MONITORING@10":  "C-mon",
		"SLACK_WHALE_ALERT@10": "C-whale",
		"SLACK_RECEIPTS@10":    "C-receipts",
	})
}

func TestFanoutDeliversToResolvedDestinations(t *testing.T) {
	notifier := newFakeNotifier()
	fanout := NewFanout(notifier, testRouter(), zerolog.Nop())

	err := fanout.Dispatch(context.Background(), chain.Network(10), []Routed{
		{Destination: DestMonitoring, Message: Message{Title: "a"}},
		{Destination: DestWhaleAlert, Message: Message{Title: "b"}},
	}, true)
	if err != nil {
		t.Fatalf("所有目的地均已配置时应成功: %v", err)
	}

	if len(notifier.sent["C-mon"]) != 1 || len(notifier.sent["C-whale"]) != 1 {
		t.Fatalf("消息未按路由投递: %#v", notifier.sent)
	}
}

func TestFanoutSkipsUnresolvedDestination(t *testing.T) {
	notifier := newFakeNotifier()
	fanout := NewFanout(notifier, testRouter(), zerolog.Nop())

	err := fanout.Dispatch(context.Background(), chain.Network(10), []Routed{
		{Destination: DestTransactions, Message: Message{Title: "a"}},
		{Destination: DestMonitoring, Message: Message{Title: "b"}},
	}, true)
	if err != nil {
		t.Fatalf("未配置的目的地应被跳过而非报错: %v", err)
	}
	if len(notifier.sent["C-mon"]) != 1 {
		t.Fatal("已配置的目的地仍应收到消息")
	}
}

func TestFanoutFailFastPropagates(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.failing["C-whale"] = errors.New("rate limited")
	fanout := NewFanout(notifier, testRouter(), zerolog.Nop())

	err := fanout.Dispatch(context.Background(), chain.Network(10), []Routed{
		{Destination: DestMonitoring, Message: Message{Title: "a"}},
		{Destination: DestWhaleAlert, Message: Message{Title: "b"}},
	}, true)
	if err == nil {
		t.Fatal("failFast 模式下投递失败应向上传播")
	}
	if !strings.Contains(err.Error(), "whale-alert") {
		t.Fatalf("错误应标明失败的目的地: %v", err)
	}
	if len(notifier.sent["C-mon"]) != 1 {
		t.Fatal("一个目的地失败不应阻止其他目的地投递")
	}
}

func TestFanoutCollectModeSwallowsFailures(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.failing["C-receipts"] = errors.New("rate limited")
	fanout := NewFanout(notifier, testRouter(), zerolog.Nop())

	err := fanout.Dispatch(context.Background(), chain.Network(10), []Routed{
		{Destination: DestReceipts, Message: Message{Title: "a"}},
	}, false)
	if err != nil {
		t.Fatalf("非 failFast 模式下失败应被记录并吞掉: %v", err)
	}
}

func TestFanoutNilNotifierSkipsAll(t *testing.T) {
	fanout := NewFanout(nil, testRouter(), zerolog.Nop())
	err := fanout.Dispatch(context.Background(), chain.Network(10), []Routed{
		{Destination: DestMonitoring, Message: Message{Title: "a"}},
	}, true)
	if err != nil {
		t.Fatalf("未配置 notifier 时应整体跳过: %v", err)
	}
}
