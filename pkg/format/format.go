// Package format renders dashboard figures the way the UI displays them:
// grouped standard notation or compact K/M/B notation with one fraction digit.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultSymbol = "$"

var compactUnits = []struct {
	threshold float64
	suffix    string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

var printer = message.NewPrinter(language.English)

// Formatter formats money in a single currency
type Formatter struct {
	symbol string
}

// NewFormatter builds a formatter from a currency setting such as "USD ($)",
// "EUR (€)" or a bare ISO code. Unknown settings fall back to "$".
func NewFormatter(setting string) *Formatter {
	return &Formatter{symbol: Symbol(setting)}
}

// Symbol extracts the display symbol of a currency setting
func Symbol(setting string) string {
	setting = strings.TrimSpace(setting)
	if open := strings.LastIndex(setting, "("); open >= 0 {
		if end := strings.LastIndex(setting, ")"); end > open+1 {
			return strings.TrimSpace(setting[open+1 : end])
		}
	}
	fields := strings.Fields(setting)
	if len(fields) == 0 {
		return defaultSymbol
	}
	unit, err := currency.ParseISO(strings.ToUpper(fields[0]))
	if err != nil {
		return defaultSymbol
	}
	return printer.Sprint(currency.NarrowSymbol(unit))
}

// Currency formats v with the formatter's symbol
func (f *Formatter) Currency(v float64, compact bool) string {
	sign, abs := split(v)
	return sign + f.symbol + magnitude(abs, compact)
}

// SmartCurrency uses compact notation from one thousand upwards
func (f *Formatter) SmartCurrency(v float64) string {
	return f.Currency(v, math.Abs(v) >= 1000)
}

// Currency formats v in US dollars
func Currency(v float64, compact bool) string {
	return (&Formatter{symbol: defaultSymbol}).Currency(v, compact)
}

// SmartCurrency formats v in US dollars, compact from one thousand upwards
func SmartCurrency(v float64) string {
	return (&Formatter{symbol: defaultSymbol}).SmartCurrency(v)
}

// Number formats v without fraction digits, or compact with one
func Number(v float64, compact bool) string {
	sign, abs := split(v)
	return sign + magnitude(abs, compact)
}

// Percent formats v, given in percent units, with a fixed number of decimals
func Percent(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df", decimals), v) + "%"
}

func split(v float64) (string, float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", 0
	}
	if v < 0 && roundTo(-v, 0) != 0 {
		return "-", -v
	}
	return "", math.Abs(v)
}

func magnitude(abs float64, compact bool) string {
	if !compact {
		return printer.Sprintf("%d", int64(roundTo(abs, 0)))
	}
	for i, u := range compactUnits {
		if abs < u.threshold {
			continue
		}
		scaled := roundTo(abs/u.threshold, 1)
		if scaled >= 1000 && i > 0 {
			up := compactUnits[i-1]
			return trimmed(roundTo(abs/up.threshold, 1)) + up.suffix
		}
		return trimmed(scaled) + u.suffix
	}
	scaled := roundTo(abs, 1)
	if scaled >= 1000 {
		return "1K"
	}
	return trimmed(scaled)
}

func trimmed(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
