// Package providers defines the capability interfaces the pipeline stages
// call and the Registry that maps a configured name to an implementation.
//
// There are five capability kinds: script, tts, renderer, storage, and
// publisher. Each kind has its own interface and its own factory table.
// Resolving a kind reads provider.<kind> from Settings (falling back to
// "mock") and builds a fresh instance, so no provider state survives between
// stage calls. The Registry is an ordinary value built at startup and passed
// to the executor; tests construct their own.
package providers
