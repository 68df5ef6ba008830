// Package schedule makes orchestrated calls on recurring schedules.
//
// Schedules are built in code with Every, Daily, Weekly and Cron, or parsed
// from configuration with ParseSchedule. A Scheduler holds named entries and
// calls each one through its Caller when it comes due, never overlapping two
// calls of the same entry.
package schedule
