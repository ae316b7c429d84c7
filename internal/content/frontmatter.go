package content

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

const fence = "---"

// splitFrontMatter separates the leading YAML block from the body.
func splitFrontMatter(data []byte) ([]byte, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	first, rest, ok := strings.Cut(text, "\n")
	if strings.TrimSpace(first) != fence {
		return nil, "", ErrNoFrontMatter
	}
	if !ok {
		return nil, "", ErrUnclosedMatter
	}

	var meta strings.Builder
	for {
		line, next, more := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == fence {
			return []byte(meta.String()), strings.TrimLeft(next, "\n"), nil
		}
		if !more {
			return nil, "", ErrUnclosedMatter
		}
		meta.WriteString(line)
		meta.WriteByte('\n')
		rest = next
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
}

// parseDate coerces a front matter date. Integers are Unix milliseconds.
func parseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case int:
		return time.UnixMilli(int64(d)).UTC(), nil
	case int64:
		return time.UnixMilli(d).UTC(), nil
	case uint64:
		return time.UnixMilli(int64(d)).UTC(), nil
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, d)
	default:
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, v)
	}
}
