// Package web serves the attendance HTTP API.
//
// # Surface
//
// All JSON endpoints live under /api/v1 and answer with a uniform envelope:
// a "success" boolean plus the payload fields, or {"success":false,
// "error":..., "kind":...} on failure. Prometheus metrics are exposed on
// /metrics and the stored sighting images on
// /api/v1/unknown-entries/{id}/image as raw JPEG.
//
// # Auth
//
// When an auth secret is configured every /api/v1 route except /health
// requires a bearer token signed with HS256. Tokens are minted by MintToken,
// typically through the CLI. With no secret configured the API is open,
// which suits the usual deployment of binding to localhost only.
//
// # Wiring
//
// The server reads through the store and face client it is constructed
// with; live pipeline state (status, metrics, recent events) comes from the
// optional engine reference and degrades to an empty report when the engine
// is not attached.
package web
