// Package testutil builds throwaway SQLite stores for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"yield-ledger-go/internal/database"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// NewStore opens a fresh database file under t.TempDir().
func NewStore(t testing.TB) *database.Service {
	t.Helper()
	svc, err := database.NewSQLiteService(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

// NewUser registers a user and its wallet.
func NewUser(t testing.TB, st store.Store, email, referrerId string) *models.User {
	t.Helper()
	ctx := context.Background()
	user, err := st.CreateUser(ctx, store.CreateUserParams{Name: email, Email: email, ReferrerId: referrerId})
	require.NoError(t, err)
	_, err = st.CreateWallet(ctx, user.Id, models.DefaultCurrency)
	require.NoError(t, err)
	return user
}

// Wallet reloads the user's wallet.
func Wallet(t testing.TB, st store.Store, userId string) *models.Wallet {
	t.Helper()
	w, err := st.GetWalletByUserId(context.Background(), userId)
	require.NoError(t, err)
	return w
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RequireDecimal fails unless got equals want numerically.
func RequireDecimal(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, got.Equal(Dec(want)), "want %s, got %s %v", want, got, msgAndArgs)
}
