package chain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"azuro-bet/internal/config"
	"azuro-bet/pkg/types"
)

// Resolver looks up static metadata for the chain the wallet is connected to.
// An unsupported chain is not an error: it is logged and resolves to nil.
type Resolver struct {
	chains map[int64]types.ChainMetadata
	logger *slog.Logger
}

// NewResolver builds the lookup table from the configured chains.
func NewResolver(chains []config.ChainConfig, logger *slog.Logger) *Resolver {
	table := make(map[int64]types.ChainMetadata, len(chains))
	for _, c := range chains {
		table[c.ChainID] = MetadataFromConfig(c)
	}
	return &Resolver{
		chains: table,
		logger: logger.With("component", "chain_resolver"),
	}
}

// MetadataFromConfig converts one config row into ChainMetadata.
func MetadataFromConfig(c config.ChainConfig) types.ChainMetadata {
	return types.ChainMetadata{
		ChainID:        c.ChainID,
		Name:           c.Name,
		NativeCurrency: c.NativeCurrency,
		ExplorerURL:    c.ExplorerURL,
		Contracts: types.Contracts{
			LP:         common.HexToAddress(c.LP),
			Core:       common.HexToAddress(c.Core),
			ComboCore:  common.HexToAddress(c.ComboCore),
			ProxyFront: common.HexToAddress(c.ProxyFront),
		},
		BetToken: types.BetToken{
			Address:  common.HexToAddress(c.BetToken),
			Symbol:   c.BetTokenSymbol,
			Decimals: c.BetDecimals,
			Native:   c.NativeToken,
		},
	}
}

// Resolve returns the metadata for chainID, or nil after logging a
// diagnostic when the chain is not configured.
func (r *Resolver) Resolve(chainID int64) *types.ChainMetadata {
	meta, ok := r.chains[chainID]
	if !ok {
		r.logger.Error("no metadata for connected chain", "chain_id", chainID)
		return nil
	}
	return &meta
}

// Active resolves the chain of the connected account.
func (r *Resolver) Active(account types.Account) *types.ChainMetadata {
	return r.Resolve(account.ChainID)
}

// Supported lists the configured chain ids.
func (r *Resolver) Supported() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}

// Detect asks the node which chain it serves and builds the ambient account
// for the wallet on that chain.
func Detect(ctx context.Context, backend Backend, wallet *Wallet) (types.Account, error) {
	id, err := backend.ChainID(ctx)
	if err != nil {
		return types.Account{}, fmt.Errorf("chain id: %w", err)
	}
	return types.Account{Address: wallet.Address(), ChainID: id.Int64()}, nil
}
