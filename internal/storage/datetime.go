package storage

import "time"

// Accepted publish_datetime layouts, tried in order.
var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseDateTime parses an operator-entered timestamp in loc (nil means time.Local).
// Only "YYYY-MM-DD HH:MM" and "YYYY-MM-DD HH:MM:SS" are accepted; anything else
// reports false and the event is never due.
func ParseDateTime(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Due reports whether publishAt has been reached at now, and whether it parsed at all.
func Due(publishAt string, now time.Time, loc *time.Location) (due bool, valid bool) {
	t, ok := ParseDateTime(publishAt, loc)
	if !ok {
		return false, false
	}
	return !now.Before(t), true
}
