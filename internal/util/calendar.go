package util

import (
	"time"

	"locline/internal/domain"
)

// closeConfirmedHourET is the wall-clock time (ET) after which a session's
// close is treated as settled. A few minutes past the 16:00 close lets the
// closing auction print settle in provider feeds.
const (
	closeConfirmedHourET   = 16
	closeConfirmedMinuteET = 5
)

// SessionClock reports whether a daily bar's close can be treated as
// confirmed, i.e. whether the NYSE session that produced it has ended.
// Used to drop a still-forming last row before computing limit prices.
type SessionClock struct {
	loc *time.Location
	now func() time.Time
}

// NewSessionClock creates a SessionClock in the exchange timezone.
func NewSessionClock() (*SessionClock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	return &SessionClock{loc: loc, now: time.Now}, nil
}

// Confirmed reports whether a bar dated barDate has a settled close. Bars
// from past days are always confirmed; a bar carrying today's date is
// confirmed only once the session close has passed. Holidays need no
// special case: when the market never opened, no bar carries that date.
func (c *SessionClock) Confirmed(barDate time.Time) bool {
	now := c.now().In(c.loc)
	if barDate.Year() != now.Year() || barDate.Month() != now.Month() || barDate.Day() != now.Day() {
		return true
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day(),
		closeConfirmedHourET, closeConfirmedMinuteET, 0, 0, c.loc)
	return now.After(cutoff)
}

// ConfirmedBars returns bars with any trailing unconfirmed bar removed,
// along with whether one was dropped. Only the last bar can be
// unconfirmed; earlier bars are completed sessions by construction.
func (c *SessionClock) ConfirmedBars(bars []domain.Bar) ([]domain.Bar, bool) {
	if len(bars) == 0 {
		return bars, false
	}
	if c.Confirmed(bars[len(bars)-1].Date) {
		return bars, false
	}
	return bars[:len(bars)-1], true
}
