// Package logs reads the nator log file for `nator logs`.
//
// Tail returns the last lines with bounded memory; Follow polls for lines
// appended after a known offset until its context ends. Both tolerate a log
// file that does not exist yet.
package logs
