// Package notifications pushes pipeline events to ntfy.
//
// Callers publish an Event with a loose Payload map; the service formats a
// title, body, tags, and priority per event and POSTs it to the configured
// topic URL. Each event family can be switched off in config, and an empty
// topic yields a no-op service so the executor never has to nil-check.
package notifications
