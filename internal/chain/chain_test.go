package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNetworkName(t *testing.T) {
	if got := Network(10).Name(); got != "optimism" {
		t.Fatalf("已知网络名称错误: %q", got)
	}
	if got := Network(999).Name(); got != "chain-999" {
		t.Fatalf("未知网络应回退到 chain id: %q", got)
	}
}

func TestTxURL(t *testing.T) {
	hash := common.HexToHash("0xabc")
	if got := Network(10).TxURL(hash); got != "https://optimistic.etherscan.io/tx/"+hash.Hex() {
		t.Fatalf("浏览器链接错误: %q", got)
	}
	if got := Network(999).TxURL(hash); got != "" {
		t.Fatalf("未知网络不应生成链接: %q", got)
	}
}

func TestGasCost(t *testing.T) {
	tx := TxEvent{GasUsed: 21_000, GasPrice: big.NewInt(3)}
	if got := tx.GasCost(); got.Int64() != 63_000 {
		t.Fatalf("gas 费用计算错误: %s", got)
	}
	if got := (TxEvent{GasUsed: 21_000}).GasCost(); got.Sign() != 0 {
		t.Fatalf("缺少 gas price 时应为 0: %s", got)
	}
}
