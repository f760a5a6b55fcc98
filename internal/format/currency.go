// Package format renders amounts for people, per display language.
package format

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"moneybook/internal/core"
)

// CurrencyConfig describes how one display language writes money.
type CurrencyConfig struct {
	Code        string
	Symbol      string
	Decimals    int
	SymbolAfter bool
}

const DefaultLanguage = "en"

var currencies = map[string]CurrencyConfig{
	"en": {Code: "USD", Symbol: "$", Decimals: 2},
	"mm": {Code: "MMK", Symbol: "Ks", Decimals: 0, SymbolAfter: true},
	"jp": {Code: "JPY", Symbol: "¥", Decimals: 0},
}

// digits are always grouped the English way, whatever the display language
var printer = message.NewPrinter(language.English)

// ConfigFor returns the currency of lang, falling back to English.
func ConfigFor(lang string) CurrencyConfig {
	if c, ok := currencies[lang]; ok {
		return c
	}
	return currencies[DefaultLanguage]
}

// Languages lists the supported display languages.
func Languages() []string {
	return []string{"en", "mm", "jp"}
}

// Currency formats m for lang, e.g. "$1,234.56", "1,235 Ks" or "¥1,235".
// Negative amounts get a leading minus.
func Currency(m core.Money, lang string) string {
	cfg := ConfigFor(lang)

	rounded := m.Decimal().Abs().Round(int32(cfg.Decimals))
	f, _ := rounded.Float64()
	number := printer.Sprintf(fmt.Sprintf("%%.%df", cfg.Decimals), f)

	var out string
	if cfg.SymbolAfter {
		out = number + " " + cfg.Symbol
	} else {
		out = cfg.Symbol + number
	}
	if m.Cents < 0 {
		out = "-" + out
	}
	return out
}

// Signed prefixes the formatted magnitude with + for income and - for
// expense, as in transaction lists and exports.
func Signed(tx core.Transaction, lang string) string {
	abs := tx.Amount
	if abs.Cents < 0 {
		abs.Cents = -abs.Cents
	}
	if tx.Type == core.Income {
		return "+" + Currency(abs, lang)
	}
	return "-" + Currency(abs, lang)
}
