// Package logs provides bounded log-file tailing shared by the IPC surface
// and the CLI.
//
// A negative offset means "the last N lines"; a non-negative offset resumes
// reading where a previous call stopped, which is how `turnstile logs -f`
// polls the daemon without re-reading the whole file. Follow mode waits a
// bounded interval for new lines so one RPC round-trip can block server-side
// instead of the client spinning.
package logs
