// Package main hosts the turnstile CLI entrypoint and command graph.
//
// The cobra command tree translates terminal invocations into IPC calls
// against the daemon, direct attendance store reads when the daemon is down,
// log tailing, unknown-entry review actions, and configuration scaffolding.
// It centralizes configuration resolution and socket discovery so subcommands
// can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
