// Package ffprobe runs ffprobe and decodes its JSON report.
//
// Inspect returns streams and container metadata; Duration is the shortcut
// used when ingesting clips and when providers need the length of a file
// they just produced.
package ffprobe
