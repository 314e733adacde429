package domain

import (
	"fmt"
	"time"
)

// Station is read-only to the reservation core. OpenMinute and CloseMinute are
// minutes after local midnight in TimeZone.
type Station struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Latitude    float64 `json:"latitude" yaml:"latitude"`
	Longitude   float64 `json:"longitude" yaml:"longitude"`
	TimeZone    string  `json:"time_zone" yaml:"time_zone"`
	OpenMinute  int     `json:"open_minute" yaml:"open_minute"`
	CloseMinute int     `json:"close_minute" yaml:"close_minute"`
}

// Location resolves the station time zone, falling back to UTC when unset.
func (s *Station) Location() (*time.Location, error) {
	if s.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("station %s: invalid time zone %q: %w", s.ID, s.TimeZone, err)
	}
	return loc, nil
}

// IsOpenAt reports whether t falls inside the operating window of its own
// calendar day. Both ends are inclusive. Open == Close means the station never
// closes; Close < Open describes a window that runs past midnight.
func (s *Station) IsOpenAt(t time.Time) (bool, error) {
	loc, err := s.Location()
	if err != nil {
		return false, err
	}
	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	// 10:00:30 is past a 10:00 close.
	pastMinute := local.Second() > 0 || local.Nanosecond() > 0

	switch {
	case s.OpenMinute == s.CloseMinute:
		return true, nil
	case s.OpenMinute < s.CloseMinute:
		if minute < s.OpenMinute || minute > s.CloseMinute {
			return false, nil
		}
		return !(minute == s.CloseMinute && pastMinute), nil
	default:
		if minute >= s.OpenMinute {
			return true, nil
		}
		if minute < s.CloseMinute {
			return true, nil
		}
		return minute == s.CloseMinute && !pastMinute, nil
	}
}

// HoursLabel formats the operating window as HH:MM-HH:MM.
func (s *Station) HoursLabel() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", s.OpenMinute/60, s.OpenMinute%60, s.CloseMinute/60, s.CloseMinute%60)
}
