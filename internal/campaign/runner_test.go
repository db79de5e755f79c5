package campaign

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/notify"
	"lending-alerts/internal/secrets"
	"lending-alerts/internal/snapshot"
)

var (
	alice = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x1000000000000000000000000000000000000002")
)

type fakeSubs struct {
	accounts []common.Address
}

func (f *fakeSubs) Subscribers(ctx context.Context) ([]common.Address, error) {
	return f.accounts, nil
}

type fakePositions struct {
	views [][]snapshot.MarketSnapshot
}

func (f *fakePositions) AccountViews(ctx context.Context, block *big.Int, accounts []common.Address) ([][]snapshot.MarketSnapshot, error) {
	return f.views, nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []common.Address
	failFor map[common.Address]error
}

func (f *fakeSender) Notify(ctx context.Context, recipient common.Address, title, body, cta string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[recipient]; ok {
		return err
	}
	f.sent = append(f.sent, recipient)
	return nil
}

type fakeRecordStore struct {
	delay  *big.Int
	record *RunRecord
}

func (f *fakeRecordStore) GetBigInt(ctx context.Context, key string) (*big.Int, error) {
	if key == DelayKey && f.delay != nil {
		return f.delay, nil
	}
	return new(big.Int), nil
}

func (f *fakeRecordStore) PutJSON(ctx context.Context, key string, value any) error {
	record, ok := value.(*RunRecord)
	if !ok {
		return errors.New("unexpected record type")
	}
	f.record = record
	return nil
}

type digestNotifier struct {
	mu   sync.Mutex
	sent map[string][]notify.Message
}

func (d *digestNotifier) Send(ctx context.Context, channel string, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sent == nil {
		d.sent = make(map[string][]notify.Message)
	}
	d.sent[channel] = append(d.sent[channel], msg)
	return nil
}

func testFanout(notifier notify.Notifier) *notify.Fanout {
	router := notify.NewRouter(secrets.Static{
		"SLACK_RECEIPTS@10":   "C-receipts",
		"SLACK_MONITORING@10": "C-mon",
	})
	return notify.NewFanout(notifier, router, zerolog.Nop())
}

func borrowerView(symbol string, maturity, previewValue int64) []snapshot.MarketSnapshot {
	return []snapshot.MarketSnapshot{{
		AssetSymbol: symbol,
		Decimals:    18,
		PenaltyRate: big.NewInt(0),
		FixedBorrowPositions: []snapshot.FixedPosition{{
			Maturity:     big.NewInt(maturity),
			Principal:    big.NewInt(1_000_000_000_000_000_000),
			PreviewValue: big.NewInt(previewValue),
		}},
	}}
}

func TestRunnerDeliversAndRecordsOutcomes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	maturity := now.Unix() + 3600

	sender := &fakeSender{failFor: map[common.Address]error{bob: errors.New("device unreachable")}}
	store := &fakeRecordStore{}
	digests := &digestNotifier{}

	runner := NewRunner(
		&fakePositions{views: [][]snapshot.MarketSnapshot{
			borrowerView("DAI", maturity, 2_000_000_000_000_000_000),
			borrowerView("USDC", maturity, 3_000_000_000_000_000_000),
		}},
		&fakeSubs{accounts: []common.Address{alice, bob}},
		sender,
		testFanout(digests),
		store,
		Options{Network: chain.Network(10), Delay: 24 * time.Hour},
		zerolog.Nop(),
	)

	record, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("campaign run 应成功: %v", err)
	}

	if len(record.Notifications) != 2 {
		t.Fatalf("应产生 2 条 outcome, 实际 %d", len(record.Notifications))
	}
	if record.RunID == "" || record.LastRun != now.Unix() {
		t.Fatalf("run 元数据不正确: %+v", record)
	}

	first, second := record.Notifications[0], record.Notifications[1]
	if first.Subscriber != alice.Hex() || !first.SuccessfullySent {
		t.Fatalf("alice 的 outcome 不正确: %+v", first)
	}
	if second.Subscriber != bob.Hex() || second.SuccessfullySent {
		t.Fatalf("bob 的投递失败应被记录: %+v", second)
	}
	if !strings.Contains(second.Error, "device unreachable") {
		t.Fatalf("失败原因应进入 outcome: %q", second.Error)
	}
	if second.ChainID != 10 {
		t.Fatalf("chainId 错误: %d", second.ChainID)
	}

	if store.record == nil {
		t.Fatal("run record 应被持久化")
	}

	if len(digests.sent["C-receipts"]) != 1 {
		t.Fatal("成功摘要应发送到 receipts")
	}
	if len(digests.sent["C-mon"]) != 1 {
		t.Fatal("存在失败时应发送失败摘要到 monitoring")
	}
	failDigest := digests.sent["C-mon"][0]
	if !strings.Contains(failDigest.Title, "1 notifications failed for chain 10") {
		t.Fatalf("失败摘要标题不正确: %s", failDigest.Title)
	}
}

func TestRunnerSkipRules(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	digests := &digestNotifier{}
	store := &fakeRecordStore{}

	views := [][]snapshot.MarketSnapshot{
		// zero preview value: position already repaid
		borrowerView("DAI", now.Unix()+3600, 0),
		// maturity beyond the reminder window
		borrowerView("USDC", now.Unix()+7*24*3600, 1),
	}

	runner := NewRunner(
		&fakePositions{views: views},
		&fakeSubs{accounts: []common.Address{alice, bob}},
		&fakeSender{},
		testFanout(digests),
		store,
		Options{Network: chain.Network(10), Delay: 24 * time.Hour},
		zerolog.Nop(),
	)

	record, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("campaign run 应成功: %v", err)
	}
	if len(record.Notifications) != 0 {
		t.Fatalf("不符合条件的仓位不应产生提醒: %d", len(record.Notifications))
	}

	if len(digests.sent["C-receipts"]) != 1 {
		t.Fatal("即使没有提醒也应发送成功摘要")
	}
	if len(digests.sent["C-mon"]) != 0 {
		t.Fatal("没有失败时不应发送失败摘要")
	}
}

func TestRunnerDelayOverrideFromStore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	store := &fakeRecordStore{delay: big.NewInt(7200)}
	sender := &fakeSender{}

	runner := NewRunner(
		&fakePositions{views: [][]snapshot.MarketSnapshot{
			// inside the overridden window, outside the configured one
			borrowerView("DAI", now.Unix()+7000, 1),
		}},
		&fakeSubs{accounts: []common.Address{alice}},
		sender,
		testFanout(&digestNotifier{}),
		store,
		Options{Network: chain.Network(10), Delay: time.Hour},
		zerolog.Nop(),
	)

	record, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("campaign run 应成功: %v", err)
	}
	if len(record.Notifications) != 1 {
		t.Fatalf("存储的 delay 覆盖应生效: %d", len(record.Notifications))
	}
}

func TestExpiryClauseWording(t *testing.T) {
	cases := []struct {
		daysLeft int64
		want     string
	}{
		{5, "expires in 5 days"},
		{1, "expires tomorrow"},
		{0, "expires today"},
		{-1, "expired yesterday"},
		{-3, "expired 3 days ago"},
	}
	for _, tc := range cases {
		if got := expiryClause(tc.daysLeft); got != tc.want {
			t.Fatalf("daysLeft=%d: 期望 %q, 实际 %q", tc.daysLeft, tc.want, got)
		}
	}
}

func TestBodyMsgRepaymentTone(t *testing.T) {
	upcoming := bodyMsg(2, "1", "DAI", "1.1", big.NewInt(0))
	if !strings.Contains(upcoming, "remember to repay") {
		t.Fatalf("未到期文案应为提醒语气: %s", upcoming)
	}

	overdue := bodyMsg(-2, "1", "DAI", "1.1", big.NewInt(0))
	if !strings.Contains(overdue, "ASAP") {
		t.Fatalf("逾期文案应为催还语气: %s", overdue)
	}
}

func TestFloorDiv(t *testing.T) {
	cases := []struct {
		a, b, want int64
	}{
		{86_400, 86_400, 1},
		{86_399, 86_400, 0},
		{-1, 86_400, -1},
		{-86_401, 86_400, -2},
	}
	for _, tc := range cases {
		if got := floorDiv(tc.a, tc.b); got != tc.want {
			t.Fatalf("floorDiv(%d,%d): 期望 %d, 实际 %d", tc.a, tc.b, tc.want, got)
		}
	}
}
