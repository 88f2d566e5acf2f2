// Package scheduler drives the executor on a cron schedule.
//
// Each tick is one unit of work: run the oldest pending job, or create a job
// from the oldest unused clip and run that, or do nothing. Ticks never
// overlap; a tick that fires while another is still running is skipped.
package scheduler
