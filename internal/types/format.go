package types

import (
	"fmt"
	"math"
)

// FormatOffset renders a step's time offset for display: "Start" for the
// origin, otherwise "+45m", "+2h" or "+2h 30m". Offsets are rounded to the
// nearest minute.
func FormatOffset(hours float64) string {
	total := int(math.Round(hours * 60))
	if total <= 0 {
		return "Start"
	}
	h, m := total/60, total%60
	switch {
	case h == 0:
		return fmt.Sprintf("+%dm", m)
	case m == 0:
		return fmt.Sprintf("+%dh", h)
	default:
		return fmt.Sprintf("+%dh %dm", h, m)
	}
}
