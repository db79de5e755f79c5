package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/decoder"
	"lending-alerts/internal/guard"
	"lending-alerts/internal/notify"
	"lending-alerts/internal/rules"
	"lending-alerts/internal/secrets"
	"lending-alerts/internal/snapshot"
)

// Log fixture ABI, mirroring the market event signatures.
const fixtureABI = `[
	{"type":"event","name":"MarketUpdate","inputs":[
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"floatingDepositShares","type":"uint256","indexed":false},
		{"name":"floatingAssets","type":"uint256","indexed":false},
		{"name":"floatingBorrowShares","type":"uint256","indexed":false},
		{"name":"floatingDebt","type":"uint256","indexed":false}]},
	{"type":"event","name":"Deposit","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]}
]`

var (
	testMarket = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testSender = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type memStore struct {
	values map[string]*big.Int
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]*big.Int)}
}

func (m *memStore) GetBigInt(ctx context.Context, key string) (*big.Int, error) {
	if v, ok := m.values[key]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (m *memStore) PutBigInt(ctx context.Context, key string, value *big.Int) error {
	m.values[key] = new(big.Int).Set(value)
	return nil
}

type fakeReader struct {
	called   bool
	gotBlock *big.Int
	snap     *snapshot.GlobalSnapshot
	err      error
}

func (f *fakeReader) Snapshot(ctx context.Context, block *big.Int, account common.Address) (*snapshot.GlobalSnapshot, error) {
	f.called = true
	f.gotBlock = block
	return f.snap, f.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]notify.Message
}

func (r *recordingNotifier) Send(ctx context.Context, channel string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]notify.Message)
	}
	r.sent[channel] = append(r.sent[channel], msg)
	return nil
}

func fixtureEvents(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(fixtureABI))
	if err != nil {
		t.Fatalf("解析测试 ABI 失败: %v", err)
	}
	return parsed
}

func marketUpdateLog(t *testing.T, shares, assets int64) chain.RawLog {
	t.Helper()
	ev := fixtureEvents(t).Events["MarketUpdate"]
	data, err := ev.Inputs.Pack(
		big.NewInt(1_700_000_000),
		big.NewInt(shares),
		big.NewInt(assets),
		big.NewInt(0),
		big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("打包 MarketUpdate 失败: %v", err)
	}
	return chain.RawLog{Address: testMarket, Data: data, Topics: []common.Hash{ev.ID}}
}

func depositLog(t *testing.T, assets int64) chain.RawLog {
	t.Helper()
	ev := fixtureEvents(t).Events["Deposit"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(assets), big.NewInt(assets))
	if err != nil {
		t.Fatalf("打包 Deposit 失败: %v", err)
	}
	return chain.RawLog{
		Address: testMarket,
		Data:    data,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(testSender.Bytes()), common.BytesToHash(testSender.Bytes())},
	}
}

func newTestService(t *testing.T, store *memStore, reader *fakeReader, notifier notify.Notifier) *Service {
	t.Helper()
	registry, err := decoder.NewRegistry(zerolog.Nop())
	if err != nil {
		t.Fatalf("构建 registry 失败: %v", err)
	}
	router := notify.NewRouter(secrets.Static{"SLACK_TRANSACTIONS@10": "C-tx"})
	fanout := notify.NewFanout(notifier, router, zerolog.Nop())
	return New(
		registry,
		reader,
		guard.New(store, zerolog.Nop()),
		rules.NewEngine(rules.Thresholds{}, zerolog.Nop()),
		fanout,
		nil,
		true,
		zerolog.Nop(),
	)
}

func testTx(logs ...chain.RawLog) chain.TxEvent {
	return chain.TxEvent{
		Network:     chain.Network(10),
		Hash:        common.HexToHash("0x01"),
		From:        testSender,
		BlockNumber: big.NewInt(100),
		GasUsed:     21_000,
		GasPrice:    big.NewInt(2),
		Logs:        logs,
	}
}

func TestProcessTransactionGuardViolationAborts(t *testing.T) {
	store := newMemStore()
	preseed, _ := new(big.Int).SetString("4200000000000000000", 10)
	store.values[guard.Key(chain.Network(10), testMarket)] = preseed

	reader := &fakeReader{snap: &snapshot.GlobalSnapshot{}}
	notifier := &recordingNotifier{}
	svc := newTestService(t, store, reader, notifier)

	// shares==assets gives a share value of exactly 1e18, below the preseed.
	err := svc.ProcessTransaction(context.Background(), testTx(marketUpdateLog(t, 1000, 1000)))
	if err == nil {
		t.Fatal("守卫违规应中止本次调用")
	}
	var violation *guard.ViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("错误类型应为 *guard.ViolationError: %T", err)
	}

	if reader.called {
		t.Fatal("守卫违规后不应再读取快照")
	}
	if len(notifier.sent) != 0 {
		t.Fatal("守卫违规后不应发送任何告警")
	}
	if store.values[guard.Key(chain.Network(10), testMarket)].Cmp(preseed) != 0 {
		t.Fatal("违规时不应覆盖已存储的 share value")
	}
}

func TestProcessTransactionNoRecognizedEvents(t *testing.T) {
	reader := &fakeReader{snap: &snapshot.GlobalSnapshot{}}
	svc := newTestService(t, newMemStore(), reader, &recordingNotifier{})

	tx := testTx(chain.RawLog{Address: testMarket, Topics: []common.Hash{common.HexToHash("0xff")}})
	if err := svc.ProcessTransaction(context.Background(), tx); err != nil {
		t.Fatalf("无可识别事件时应静默返回: %v", err)
	}
	if reader.called {
		t.Fatal("无事件时不应读取快照")
	}
}

func TestProcessTransactionDispatchesAlerts(t *testing.T) {
	store := newMemStore()
	reader := &fakeReader{snap: &snapshot.GlobalSnapshot{
		BlockTimestamp: big.NewInt(1_700_000_000),
		Markets: []snapshot.MarketSnapshot{{
			Market:                     testMarket,
			AssetSymbol:                "DAI",
			Decimals:                   18,
			UsdPrice:                   big.NewInt(1),
			TotalFloatingDepositAssets: big.NewInt(1000),
			TotalFloatingBorrowAssets:  big.NewInt(1),
			PenaltyRate:                big.NewInt(0),
		}},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(t, store, reader, notifier)

	tx := testTx(marketUpdateLog(t, 1000, 1100), depositLog(t, 500))
	if err := svc.ProcessTransaction(context.Background(), tx); err != nil {
		t.Fatalf("处理应成功: %v", err)
	}

	if !reader.called || reader.gotBlock.Int64() != 100 {
		t.Fatalf("快照应钉在触发交易的区块: %v", reader.gotBlock)
	}

	stored := store.values[guard.Key(chain.Network(10), testMarket)]
	if stored == nil || stored.String() != "1100000000000000000" {
		t.Fatalf("share value 应被持久化: %v", stored)
	}

	if len(notifier.sent["C-tx"]) != 1 {
		t.Fatalf("raw activity 应投递到 transactions 频道: %#v", notifier.sent)
	}
	msg := notifier.sent["C-tx"][0]
	if !strings.Contains(msg.Title, "DAI deposit") {
		t.Fatalf("消息标题不正确: %s", msg.Title)
	}
}
