// Package notifications pushes attendance events to an ntfy-style webhook.
//
// The default implementation posts plain-text messages with Title and Tags
// headers to the endpoint configured in config.toml and gracefully degrades
// to a no-op when no webhook is configured. Per-event toggles let a
// deployment push check-ins but suppress unknown sightings, or push errors
// only.
//
// Engine and daemon code depend only on the Service interface, so alternate
// transports slot in without touching callers.
package notifications
