package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"trendforge/internal/models"

	"github.com/google/uuid"
)

// TimestampLayout is the rendering used for every normalized timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// NormalizeRecord turns one raw upstream record into a New item draft. The
// timestamp is rendered in now's location.
func NormalizeRecord(source string, raw map[string]any, now time.Time) (*models.Item, error) {
	sourceItemID, ok := stableID(raw["id"])
	if !ok {
		return nil, fmt.Errorf("%w: %s record has no usable id", models.ErrMalformedRecord, source)
	}

	item := &models.Item{
		ID:           uuid.NewString(),
		Source:       source,
		SourceItemID: sourceItemID,
		Title:        stringField(raw, "title"),
		Cover:        stringField(raw, "cover"),
		Description:  stringField(raw, "desc"),
		Author:       stringField(raw, "author"),
		URL:          stringField(raw, "url"),
		MobileURL:    stringField(raw, "mobileUrl"),
		Hot:          hotField(raw["hot"]),
		Timestamp:    NormalizeTimestamp(raw["timestamp"], now.Location()),
		CreateTime:   now,
		Status:       models.StatusNew,
	}
	return item, nil
}

// NormalizeTimestamp applies the upstream timestamp policy:
//   - 13 digit integers are milliseconds; the leading 10 digits are seconds
//   - 19 character values are unknown and become nil
//   - other integers are epoch seconds
//   - anything else passes through as text
func NormalizeTimestamp(value any, loc *time.Location) *string {
	if value == nil {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	if digits, ok := integerText(value); ok {
		var seconds int64
		switch len(digits) {
		case 13:
			seconds, _ = strconv.ParseInt(digits[:10], 10, 64)
		case 19:
			return nil
		default:
			parsed, err := strconv.ParseInt(digits, 10, 64)
			if err != nil {
				return passthrough(value)
			}
			seconds = parsed
		}
		formatted := time.Unix(seconds, 0).In(loc).Format(TimestampLayout)
		return &formatted
	}

	if s, ok := value.(string); ok && len(s) == 19 {
		return nil
	}
	return passthrough(value)
}

// integerText returns the decimal text of value when it is an integer.
func integerText(value any) (string, bool) {
	switch v := value.(type) {
	case json.Number:
		s := v.String()
		if isDigits(strings.TrimPrefix(s, "-")) {
			return s, true
		}
		return "", false
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e18 {
			return strconv.FormatInt(int64(v), 10), true
		}
		return "", false
	default:
		return "", false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func passthrough(value any) *string {
	if s, ok := value.(string); ok {
		return &s
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		s := fmt.Sprint(value)
		return &s
	}
	s := string(encoded)
	return &s
}

// stableID renders an upstream id. Missing, null, empty, zero and false ids
// are not stable.
func stableID(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case json.Number:
		if digits, ok := integerText(v); ok {
			return digits, digits != "0"
		}
		f, err := v.Float64()
		if err != nil || f == 0 {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case float64:
		if v == 0 {
			return "", false
		}
		if digits, ok := integerText(v); ok {
			return digits, true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int, int64, int32:
		digits, _ := integerText(v)
		return digits, digits != "0"
	case bool:
		return "true", v
	default:
		return "", false
	}
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// hotField accepts numbers and numeric strings such as "1234" or "12.5".
func hotField(value any) *int64 {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		return &v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	// Values outside the int64 range, infinities included, have no conversion.
	if math.IsNaN(f) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	hot := int64(f)
	return &hot
}
