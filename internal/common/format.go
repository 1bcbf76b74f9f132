package common

import (
	"fmt"
	"strings"

	"yield-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

func PrintSeparatorNewline(char string, width int) {
	fmt.Println("\n" + strings.Repeat(char, width))
}

// PrintHeader prints a title between two rules.
func PrintHeader(title string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// ShortId truncates ids for tables.
func ShortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// FormatAmount renders money at fiat precision with the wallet currency.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(models.FiatPrecision), currency)
}

// PrintUserHeader opens a boxed section for a user.
func PrintUserHeader(user models.User, detail string, width int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	if detail != "" {
		fmt.Printf("│  %s\n", detail)
	}
	PrintBoxSeparator(width)
}

// PrintBuckets lists every bucket of a wallet.
func PrintBuckets(w *models.Wallet) {
	buckets := models.Buckets
	for i, b := range buckets {
		fmt.Printf("%s %-10s: %20s\n", BoxPrefix(i == len(buckets)-1), b, FormatAmount(w.Balance(b), w.Currency))
	}
}
