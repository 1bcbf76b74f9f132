package formance

import (
	"context"
	"fmt"
	"math/big"

	"yield-ledger-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BucketBalances returns the mirrored balance of every bucket of a user's
// wallet. Used to cross-check the local ledger.
func (s *Service) BucketBalances(ctx context.Context, userId, currency string) (map[models.Bucket]decimal.Decimal, error) {
	zap.L().Debug("Getting mirrored balances from Formance", zap.String("user_id", userId))

	fAsset := formanceAsset(currency)
	balances := make(map[models.Bucket]decimal.Decimal, len(models.Buckets))
	for _, bucket := range models.Buckets {
		vols, err := s.getAccountVolumes(ctx, bucketAccount(userId, bucket))
		if err != nil {
			return nil, err
		}
		balances[bucket] = bigIntToDecimal(volumeBalance(vols, fAsset), currency)
	}
	return balances, nil
}

// getAccountVolumes fetches volumes for a single account via GetAccount.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get account %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}
