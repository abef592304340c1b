// Package display renders forecasts, signals and backtests for the terminal.
package display

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"coincast/pkg/model"
)

var (
	buyColor     = color.New(color.FgGreen, color.Bold)
	sellColor    = color.New(color.FgRed, color.Bold)
	neutralColor = color.New(color.FgYellow)
	headingColor = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.Faint)
)

// Price formats a USD price with thousands separators. Sub-dollar prices
// keep four significant digits.
func Price(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "-"
	case math.Abs(v) >= 1:
		return "$" + humanize.FormatFloat("#,###.##", v)
	default:
		return "$" + strconv.FormatFloat(v, 'g', 4, 64)
	}
}

// Volume formats a traded volume with an SI suffix
func Volume(v float64) string {
	if v <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(v, 2, "")
}

// Percent formats a 0..1 ratio as a percentage
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Change formats the relative move from base to v with a sign
func Change(base, v float64) string {
	if base == 0 {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", (v-base)/base*100)
}

// Recommendation renders a recommendation in its color
func Recommendation(r model.Recommendation) string {
	switch r {
	case model.Buy:
		return buyColor.Sprint("BUY")
	case model.Sell:
		return sellColor.Sprint("SELL")
	default:
		return neutralColor.Sprint("NEUTRAL")
	}
}

// Confidence renders a confidence score, dimmed when weak
func Confidence(v float64) string {
	s := Percent(v)
	if v < 0.3 {
		return dimColor.Sprint(s)
	}
	return s
}
