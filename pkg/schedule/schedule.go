package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next run time after from.
type Schedule interface {
	Next(from time.Time) time.Time
}

type everySchedule struct {
	interval time.Duration
}

// Every runs at a fixed interval from the previous run.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

func (s *everySchedule) String() string {
	return "@every " + s.interval.String()
}

// clockSchedule fires at hour:minute UTC, every day or on one weekday.
type clockSchedule struct {
	hour, minute int
	weekday      time.Weekday
	weekly       bool
}

// Daily runs at hour:minute UTC each day.
func Daily(hour, minute int) Schedule {
	return &clockSchedule{hour: hour, minute: minute}
}

// Weekly runs at hour:minute UTC on day each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &clockSchedule{hour: hour, minute: minute, weekday: day, weekly: true}
}

func (s *clockSchedule) Next(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, time.UTC)

	if !s.weekly {
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}

	next = next.AddDate(0, 0, (int(s.weekday)-int(from.Weekday())+7)%7)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (s *clockSchedule) String() string {
	if s.weekly {
		return fmt.Sprintf("@weekly %s %02d:%02d", strings.ToLower(s.weekday.String()), s.hour, s.minute)
	}
	return fmt.Sprintf("@daily %02d:%02d", s.hour, s.minute)
}

type cronSchedule struct {
	expr     string
	schedule cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cron creates a schedule from a 5-field cron expression. It panics on an
// invalid expression; use ParseCron for input that is not a literal.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err.Error())
	}
	return s
}

// ParseCron parses a 5-field cron expression.
func ParseCron(expr string) (Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return &cronSchedule{expr: expr, schedule: sched}, nil
}

// Next evaluates the expression in UTC, like the clock schedules.
func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from.UTC())
}

func (s *cronSchedule) String() string {
	return s.expr
}

// ParseSchedule parses the schedule syntax used in configuration:
//
//	@every <duration>          e.g. "@every 5m"
//	@daily [HH:MM]             UTC, default 00:00
//	@weekly <weekday> [HH:MM]  UTC, e.g. "@weekly sunday 02:00"
//	<5-field cron expression>  e.g. "*/5 * * * *"
func ParseSchedule(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty schedule")
	}

	switch fields[0] {
	case "@every":
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid interval %q: want \"@every <duration>\"", expr)
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", expr, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid interval %q: must be positive", expr)
		}
		return Every(d), nil

	case "@daily":
		if len(fields) > 2 {
			return nil, fmt.Errorf("invalid daily schedule %q", expr)
		}
		hour, minute, err := parseClock(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid daily schedule %q: %w", expr, err)
		}
		return Daily(hour, minute), nil

	case "@weekly":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("invalid weekly schedule %q", expr)
		}
		day, err := parseWeekday(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid weekly schedule %q: %w", expr, err)
		}
		hour, minute, err := parseClock(fields[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid weekly schedule %q: %w", expr, err)
		}
		return Weekly(day, hour, minute), nil
	}

	return ParseCron(strings.Join(fields, " "))
}

// parseClock parses an optional "HH:MM".
func parseClock(fields []string) (int, int, error) {
	if len(fields) == 0 {
		return 0, 0, nil
	}
	t, err := time.Parse("15:04", fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("time of day must be HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
