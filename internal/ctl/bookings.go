package ctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/types"
)

// ParseBookings parses "Name=YYYY-MM-DD" arguments. The horse name is kept
// as written; matching against the market is case-insensitive downstream.
func ParseBookings(args []string) ([]types.Booking, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: expected at least one Name=YYYY-MM-DD", ErrBadBooking)
	}
	out := make([]types.Booking, 0, len(args))
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		name, date, ok := strings.Cut(arg, "=")
		name, date = strings.TrimSpace(name), strings.TrimSpace(date)
		if !ok || name == "" || date == "" {
			return nil, fmt.Errorf("%w: %q is not Name=YYYY-MM-DD", ErrBadBooking, arg)
		}
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: %q has an invalid date", ErrBadBooking, arg)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q is booked twice", ErrBadBooking, name)
		}
		seen[key] = struct{}{}
		out = append(out, types.Booking{Horse: name, Date: date})
	}
	return out, nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
