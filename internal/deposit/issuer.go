package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"yield-ledger-go/internal/gateway"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Issuer hands out deposit addresses. A completed address is never handed out
// again: every new intent gets a freshly generated address.
type Issuer struct {
	store     store.Store
	generator gateway.AddressGenerator
	ttl       time.Duration
	now       func() time.Time
}

func NewIssuer(st store.Store, generator gateway.AddressGenerator, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		store:     st,
		generator: generator,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue returns the user's unexpired pending intent for currency and network,
// or creates one with a new address.
func (i *Issuer) Issue(ctx context.Context, userId, currency, network string) (*models.DepositIntent, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	network = strings.ToUpper(strings.TrimSpace(network))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", store.ErrValidation)
	}
	if !gateway.SupportedNetwork(network) {
		return nil, fmt.Errorf("%w: unsupported network %q", store.ErrValidation, network)
	}

	var issued *models.DepositIntent
	err := i.store.Atomically(ctx, func(q store.Querier) error {
		if err := q.LockUser(ctx, userId); err != nil {
			return err
		}

		// An expired intent stays pending so that late funds on its address are
		// still credited; the replacement makes two pending intents for the pair
		// until the sweep completes or the lookback drops the old one.
		now := i.now()
		existing, err := q.FindReusableIntent(ctx, userId, currency, network, now)
		if err == nil {
			issued = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		address, walletRef, err := i.generator.NewAddress(ctx, currency, network)
		if err != nil {
			return fmt.Errorf("failed to generate deposit address: %w", err)
		}
		if address == "" {
			return fmt.Errorf("%w: generator returned an empty address", gateway.ErrExternalService)
		}

		used, err := q.AddressInUse(ctx, address)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: address %s was already issued", store.ErrConflict, address)
		}

		intent := &models.DepositIntent{
			UserId:    userId,
			Currency:  currency,
			Network:   network,
			Address:   address,
			WalletRef: walletRef,
			ExpiresAt: now.Add(i.ttl),
			CreatedAt: now,
		}
		if err := q.InsertDepositIntent(ctx, intent); err != nil {
			return err
		}
		issued = intent
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Deposit address issued",
		zap.String("user_id", userId),
		zap.String("intent_id", issued.Id),
		zap.String("address", issued.Address),
		zap.Time("expires_at", issued.ExpiresAt))
	return issued, nil
}
