package snapshot

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	gotMsg   ethereum.CallMsg
	gotBlock *big.Int
	response []byte
	err      error
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.gotMsg = msg
	f.gotBlock = blockNumber
	return f.response, f.err
}

func packAggregate(t *testing.T, results []Result) []byte {
	t.Helper()
	raw, err := multicallABI.Methods["tryAggregate"].Outputs.Pack(results)
	if err != nil {
		t.Fatalf("打包 tryAggregate 输出失败: %v", err)
	}
	return raw
}

func TestMulticallBatchCall(t *testing.T) {
	aggregator := common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	caller := &fakeCaller{
		response: packAggregate(t, []Result{
			{Success: true, ReturnData: []byte{0x01}},
			{Success: false, ReturnData: nil},
		}),
	}

	m := NewMulticall(caller, aggregator)
	block := big.NewInt(123_456)
	calls := []Call{
		{Target: common.HexToAddress("0x01"), CallData: []byte{0xaa}},
		{Target: common.HexToAddress("0x02"), CallData: []byte{0xbb}},
	}

	results, err := m.BatchCall(context.Background(), block, calls)
	if err != nil {
		t.Fatalf("BatchCall 应成功: %v", err)
	}

	if caller.gotMsg.To == nil || *caller.gotMsg.To != aggregator {
		t.Fatalf("调用目标应为聚合器合约: %v", caller.gotMsg.To)
	}
	if caller.gotBlock == nil || caller.gotBlock.Cmp(block) != 0 {
		t.Fatalf("区块高度应透传: %v", caller.gotBlock)
	}

	if len(results) != 2 {
		t.Fatalf("应返回 2 个结果, 实际 %d", len(results))
	}
	if !results[0].Success || !bytes.Equal(results[0].ReturnData, []byte{0x01}) {
		t.Fatalf("第一个结果不正确: %+v", results[0])
	}
	if results[1].Success {
		t.Fatal("第二个结果应标记为失败")
	}
}

func TestMulticallResultCountMismatch(t *testing.T) {
	caller := &fakeCaller{
		response: packAggregate(t, []Result{{Success: true}}),
	}
	m := NewMulticall(caller, common.HexToAddress("0x01"))

	_, err := m.BatchCall(context.Background(), nil, []Call{
		{Target: common.HexToAddress("0x02")},
		{Target: common.HexToAddress("0x03")},
	})
	if err == nil {
		t.Fatal("结果数量不匹配应报错")
	}
}

func TestMulticallTransportError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("connection refused")}
	m := NewMulticall(caller, common.HexToAddress("0x01"))

	if _, err := m.BatchCall(context.Background(), nil, []Call{{Target: common.HexToAddress("0x02")}}); err == nil {
		t.Fatal("传输层错误应向上传播")
	}
}
