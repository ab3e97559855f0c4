package market

import "time"

// Session is a venue's open/close offset from local midnight on a given
// weekday. A zero-value Session (Close <= Open) means the venue is closed
// all day.
type Session struct {
	Open  time.Duration
	Close time.Duration
}

// TradingHours is a per-weekday session table in a single timezone, used by
// session-aware consolidators (currently only Weekly) to tell a genuine
// market close from a merely quiet stretch of the tape.
type TradingHours struct {
	Location *time.Location
	Sessions [7]Session // indexed by time.Weekday
}

func (h TradingHours) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// DefaultTradingHours models a continuous futures/FX week: open Sunday
// 22:00 through Friday 21:00 UTC, closed the rest of the weekend.
func DefaultTradingHours() TradingHours {
	var h TradingHours
	h.Location = time.UTC
	h.Sessions[time.Sunday] = Session{Open: 22 * time.Hour, Close: 24 * time.Hour}
	for _, wd := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday} {
		h.Sessions[wd] = Session{Open: 0, Close: 24 * time.Hour}
	}
	h.Sessions[time.Friday] = Session{Open: 0, Close: 21 * time.Hour}
	return h
}

// IsOpen reports whether t falls inside one of the table's sessions.
func (h TradingHours) IsOpen(t time.Time) bool {
	lt := t.In(h.loc())
	s := h.Sessions[lt.Weekday()]
	if s.Close <= s.Open {
		return false
	}
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, h.loc())
	elapsed := lt.Sub(midnight)
	return elapsed >= s.Open && elapsed < s.Close
}

// WeekOpen returns, in UTC, the first session open of the trading week that
// starts on startWeekday and contains t.
func (h TradingHours) WeekOpen(t time.Time, startWeekday time.Weekday) time.Time {
	loc := h.loc()
	lt := t.In(loc)
	delta := int(lt.Weekday()) - int(startWeekday)
	if delta < 0 {
		delta += 7
	}
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -delta)
	open := day.Add(h.Sessions[startWeekday].Open)
	if open.After(lt) {
		open = open.AddDate(0, 0, -7)
	}
	return open.UTC()
}

// WeekClose returns, in UTC, the close of the last session in the trading
// week that begins at weekOpen. It walks backward from startWeekday to the
// most recent weekday with a non-empty session.
func (h TradingHours) WeekClose(weekOpen time.Time, startWeekday time.Weekday) time.Time {
	loc := h.loc()
	wo := weekOpen.In(loc)
	for i := 1; i <= 7; i++ {
		wd := time.Weekday((int(startWeekday) - i + 7) % 7)
		s := h.Sessions[wd]
		if s.Close > s.Open {
			day := time.Date(wo.Year(), wo.Month(), wo.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 7-i)
			return day.Add(s.Close).UTC()
		}
	}
	return wo.AddDate(0, 0, 7).UTC()
}
