package utils

import (
	"fmt"
)

// CeilForceInt returns x/y rounded up. y must be > 0.
func CeilForceInt(x, y uint64) uint64 {
	res := x / y
	if x%y != 0 {
		return res + 1
	}
	return res
}

func ByteCountSI(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(b)/float64(div), "kMGTPE"[exp])
}
