package formance

import (
	"context"
	"fmt"

	"yield-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// All metadata is set inside the script so the Formance transaction is
// self-describing.
const numscriptWalletMovement = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $local_tx_id
  string $tx_type
  string $status
  string $user_id
  string $amount_human
  string $description
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("local_tx_id", $local_tx_id)
set_tx_meta("tx_type", $tx_type)
set_tx_meta("status", $status)
set_tx_meta("user_id", $user_id)
set_tx_meta("amount_human", $amount_human)
set_tx_meta("description", $description)
`

// bucketAccount is the Formance account holding one bucket of a user's wallet.
func bucketAccount(userId string, bucket models.Bucket) string {
	return fmt.Sprintf("users:%s:%s", userId, bucket)
}

// accounts maps a ledger row to its Formance source and destination.
// Credits come from world, debits go to world, transfers stay inside the user.
func accounts(tx models.Transaction) (source, destination string) {
	switch {
	case tx.IsTransfer():
		return bucketAccount(tx.UserId, tx.CounterBucket), bucketAccount(tx.UserId, tx.Bucket)
	case tx.Amount.IsNegative():
		return bucketAccount(tx.UserId, tx.Bucket), "world"
	default:
		return "world", bucketAccount(tx.UserId, tx.Bucket)
	}
}

// scriptVars builds the Numscript variables for a committed ledger row.
func scriptVars(tx models.Transaction, currency string) map[string]string {
	source, destination := accounts(tx)
	amount := tx.Amount.Abs()
	return map[string]string{
		"asset":        formanceAsset(currency),
		"amount":       amount.Shift(int32(precisionFor(currency))).BigInt().String(),
		"source":       source,
		"destination":  destination,
		"local_tx_id":  tx.Id,
		"tx_type":      string(tx.Type),
		"status":       tx.Status,
		"user_id":      tx.UserId,
		"amount_human": amount.String(),
		"description":  tx.Description,
	}
}

// Post mirrors a committed ledger row. The local transaction id is the
// Formance reference, so replays are answered with a conflict and ignored.
func (s *Service) Post(ctx context.Context, tx models.Transaction) error {
	if tx.Amount.IsZero() {
		zap.L().Debug("Skipping zero-amount mirror post", zap.String("transaction_id", tx.Id))
		return nil
	}

	createdAt := tx.CreatedAt
	postTx := shared.V2PostTransaction{
		Reference: strPtr(tx.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptWalletMovement,
			Vars:  scriptVars(tx, models.DefaultCurrency),
		},
	}
	if !createdAt.IsZero() {
		postTx.Timestamp = &createdAt
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Transaction already mirrored", zap.String("transaction_id", tx.Id))
			return nil
		}
		return fmt.Errorf("error mirroring transaction %s: %w", tx.Id, err)
	}

	zap.L().Info("Transaction mirrored to Formance",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("type", string(tx.Type)),
		zap.String("amount", tx.Amount.String()))
	return nil
}
