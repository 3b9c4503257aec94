package signoz

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	nanosThreshold  = 1_000_000_000_000_000
	millisThreshold = 1_000_000_000_000
)

// ParseTimestamp converts an unsigned integer or numeric string to epoch
// milliseconds. The unit is inferred from magnitude: above 1e15 is
// nanoseconds, above 1e12 is milliseconds, anything else is seconds.
func ParseTimestamp(v any) (uint64, bool) {
	var n uint64
	var err error
	switch t := v.(type) {
	case json.Number:
		n, err = strconv.ParseUint(t.String(), 10, 64)
	case string:
		n, err = strconv.ParseUint(t, 10, 64)
	case uint64:
		n = t
	case int64:
		if t < 0 {
			return 0, false
		}
		n = uint64(t)
	case int:
		if t < 0 {
			return 0, false
		}
		n = uint64(t)
	default:
		return 0, false
	}
	if err != nil {
		return 0, false
	}
	return normalizeEpoch(n), true
}

func normalizeEpoch(n uint64) uint64 {
	switch {
	case n > nanosThreshold:
		return n / 1_000_000
	case n > millisThreshold:
		return n
	default:
		return n * 1000
	}
}

// ParseISO8601Ms parses "YYYY-MM-DDTHH:MM:SS[.frac]" with a "Z" or "+00:00"
// suffix into epoch milliseconds. Fractional seconds are truncated or padded
// to three digits. Instants before the epoch are rejected.
func ParseISO8601Ms(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return 0, false
	}
	if t, found := strings.CutSuffix(timePart, "Z"); found {
		timePart = t
	} else if t, found := strings.CutSuffix(timePart, "+00:00"); found {
		timePart = t
	}

	date := strings.SplitN(datePart, "-", 3)
	if len(date) != 3 {
		return 0, false
	}
	year, err1 := strconv.ParseInt(date[0], 10, 64)
	month, err2 := strconv.ParseInt(date[1], 10, 64)
	day, err3 := strconv.ParseInt(date[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	hms, frac, found := strings.Cut(timePart, ".")
	if !found {
		frac = "0"
	}
	clock := strings.SplitN(hms, ":", 3)
	if len(clock) != 3 {
		return 0, false
	}
	hour, err1 := strconv.ParseInt(clock[0], 10, 64)
	minute, err2 := strconv.ParseInt(clock[1], 10, 64)
	second, err3 := strconv.ParseInt(clock[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	var fracMs uint64
	if len(frac) >= 3 {
		fracMs, _ = strconv.ParseUint(frac[:3], 10, 64)
	} else {
		fracMs, _ = strconv.ParseUint(frac+strings.Repeat("0", 3-len(frac)), 10, 64)
	}

	days := daysFromCivil(year, month, day)
	total := days*86400 + hour*3600 + minute*60 + second
	if total < 0 {
		return 0, false
	}
	return uint64(total)*1000 + fracMs, true
}

// daysFromCivil returns days since 1970-01-01 in the proleptic Gregorian
// calendar (Howard Hinnant's days_from_civil).
func daysFromCivil(y, m, d int64) int64 {
	if m <= 2 {
		y--
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	mp := m + 9
	if m > 2 {
		mp = m - 3
	}
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// rowTimestamp resolves a list row's time: a numeric "timestamp" inside the
// data map first, then the row-level ISO string, else 0.
func rowTimestamp(data map[string]any, rowTS any) uint64 {
	if v, ok := data["timestamp"]; ok {
		if ms, ok := ParseTimestamp(v); ok {
			return ms
		}
	}
	if s, ok := rowTS.(string); ok {
		if ms, ok := ParseISO8601Ms(s); ok {
			return ms
		}
	}
	return 0
}
