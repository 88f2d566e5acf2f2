// Package preflight provides the readiness checks behind `nator doctor`.
//
// Checks cover the working directories, the job database, the external tools
// and credentials the active providers need, the kill switch, and each active
// provider's own health check. A failed check carries a short detail string
// meant for a table cell; optional checks never fail the overall report.
package preflight
