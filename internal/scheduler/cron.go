// Package scheduler provides timed-callback scheduling for TimerPipe.
//
// This file implements wall-clock cron scheduling, used to auto-start timer
// lists at configured times of day.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// CronScheduler provides cron-based job scheduling.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler creates and starts a cron scheduler.
func NewCronScheduler() *CronScheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &CronScheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *CronScheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	return s.cron.AddFunc(expr, task)
}

// Remove cancels a previously added job.
func (s *CronScheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *CronScheduler) Stop() {
	s.cron.Stop()
}
