package service

import "time"

// Schedule computes the deadlines of a periodic tick. The first tick is due
// immediately. Ticks missed while the caller was busy are skipped: the next
// deadline is the first one after now on the original grid.
type Schedule struct {
	period time.Duration
	next   time.Time
}

func NewSchedule(period time.Duration) *Schedule {
	if period <= 0 {
		panic("non-positive period for NewSchedule")
	}
	return &Schedule{
		period: period,
		next:   time.Now(),
	}
}

// Next is the deadline of the next tick.
func (s *Schedule) Next() time.Time {
	return s.next
}

// Due reports whether the next tick is due.
func (s *Schedule) Due() bool {
	return !time.Now().Before(s.next)
}

// Advance moves the schedule past a fired tick.
func (s *Schedule) Advance() {
	now := time.Now()
	s.next = s.next.Add(s.period)
	if !s.next.After(now) {
		missed := now.Sub(s.next)/s.period + 1
		s.next = s.next.Add(missed * s.period)
	}
}

// ResetNow makes the next tick due immediately. The grid restarts from now.
func (s *Schedule) ResetNow() {
	s.next = time.Now()
}
