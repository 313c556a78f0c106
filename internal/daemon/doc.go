// Package daemon coordinates the long-running Turnstile process and system
// integration points.
//
// It wires configuration, attendance storage, the recognition engine, and the
// camera hotplug monitor into a single lifecycle with flock-based locking to
// prevent multiple instances per host. The daemon exposes the read helpers the
// control socket serves, reports database health, and owns the suspend state
// applied while the capture device is disconnected.
//
// Keep orchestration logic here: frame processing lives in the engine while
// the daemon focuses on startup, shutdown, and high level coordination.
package daemon
