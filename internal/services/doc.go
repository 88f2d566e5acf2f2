// Package services defines shared utilities consumed by pipeline stages and
// the provider integrations behind them.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so provider failures carry
//     a consistent classification into job history and logs.
//
// Provider packages under services/ (openai, edgetts, ffmpeg, r2, tunnel,
// instagram) implement the capability interfaces from the providers package.
package services
