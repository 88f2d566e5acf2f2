// Package daemon owns the long-running scheduler process.
//
// It takes the worker lock so that only one process advances jobs at a time,
// moves jobs a previous crash left mid-stage to failed, and then hands control
// to the scheduler until the context ends. The same lock guards the one-shot
// run and retry commands.
package daemon
