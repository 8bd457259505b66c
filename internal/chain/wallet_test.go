package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known test key (hardhat account #0).
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewWallet(t *testing.T) {
	t.Parallel()

	w, err := NewWallet(testKey)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if w.Address() != want {
		t.Errorf("Address = %s, want %s", w.Address().Hex(), want.Hex())
	}

	// prefix is optional
	w2, err := NewWallet(testKey[2:])
	if err != nil {
		t.Fatalf("NewWallet without prefix: %v", err)
	}
	if w2.Address() != want {
		t.Errorf("Address without prefix = %s, want %s", w2.Address().Hex(), want.Hex())
	}
}

func TestNewWalletInvalid(t *testing.T) {
	t.Parallel()
	if _, err := NewWallet("0xnothex"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSignTxRecoversSender(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	w := WalletFromKey(key)
	chainID := big.NewInt(137)
	to := common.HexToAddress("0x01")

	tx := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(0)})
	signed, err := w.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != w.Address() {
		t.Errorf("recovered %s, want %s", from.Hex(), w.Address().Hex())
	}
}
