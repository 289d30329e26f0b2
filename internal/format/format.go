// Package format は表示用の文字列整形を提供する。
package format

import (
	"fmt"
	"strings"
)

const minutesPerDay = 24 * 60

// Playtime は分単位のプレイ時間を "2 days, 3 hours, 1 min" の形式に整形する。
// 0の要素は省略する。ただし日・時間がともに0の場合は分を必ず出力する。
func Playtime(minutes int) string {
	if minutes <= 0 {
		return "0 min"
	}

	days := minutes / minutesPerDay
	hours := (minutes % minutesPerDay) / 60
	mins := minutes % 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if mins > 0 || len(parts) == 0 {
		parts = append(parts, plural(mins, "min"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
