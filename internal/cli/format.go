package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"markyt-agent/pkg/utils"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"MXN": "MX$",
}

// FormatMoney formats an amount with thousands separators and the
// currency symbol, or the currency code when no symbol is known.
func FormatMoney(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()

	str := d.Abs().StringFixed(2)
	parts := strings.Split(str, ".")
	formatted := groupThousands(parts[0]) + "." + parts[1]

	if sym, ok := currencySymbols[currency]; ok {
		formatted = sym + formatted
	} else {
		formatted = formatted + " " + currency
	}
	if negative {
		formatted = "-" + formatted
	}
	return formatted
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	return utils.FormatPercent(value)
}

// FormatChange formats a price change.
func FormatChange(change, changePct float64) string {
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f (%s%.2f%%)", sign, change, sign, changePct)
}

// FormatVolume formats volume in compact form.
func FormatVolume(volume int64) string {
	abs := math.Abs(float64(volume))
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", float64(volume)/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", float64(volume)/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", float64(volume)/1e3)
	}
	return fmt.Sprintf("%d", volume)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
