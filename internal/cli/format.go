package cli

import (
	"fmt"
	"math"
	"strconv"
)

// numberSuffixes are the thousand-power suffixes FormatNumber uses.
var numberSuffixes = []string{"", "K", "M", "B", "T", "Qa", "Qi", "Sx"}

// FormatNumber renders a game quantity for display. Values below 1000
// are floored to an integer; larger values are scaled to two decimals
// with a suffix, and anything past the last suffix uses an exponent.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "0"
	}
	if v < 0 {
		return "-" + FormatNumber(-v)
	}
	if v < 1000 {
		return strconv.FormatFloat(math.Floor(v), 'f', 0, 64)
	}

	tier := int(math.Floor(math.Log10(v) / 3))
	for tier < len(numberSuffixes) {
		scaled := v / math.Pow(10, float64(tier*3))
		// 999.999K rounds to 1000.00K; show it as 1.00M instead.
		if math.Round(scaled*100)/100 < 1000 {
			return fmt.Sprintf("%.2f%s", scaled, numberSuffixes[tier])
		}
		tier++
	}
	return fmt.Sprintf("%.2e", v)
}
