// Package config loads, normalizes, and validates nator configuration.
//
// Two layers live here. The TOML file (plus built-in defaults) describes
// directories, binaries, and integration settings. The Resolver then exposes
// a fixed table of dotted keys (pipeline.publish_mode, provider.tts, ...)
// where a non-empty environment variable wins over a value persisted in the
// database, which wins over the file default. .env.local files are loaded
// with godotenv before either layer is read.
package config
