// Package main implements the nator command line.
//
// Every command opens the SQLite store directly; there is no daemon socket.
// Commands that execute stages (run, retry, recover, schedule) take the
// worker lock first so only one process ever advances jobs.
package main
