// Package preflight provides readiness checks for the capture pipeline
// and the filesystem paths that Turnstile depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs the snapshot so a
//     misconfigured deployment is visible before the first frame.
//   - The CLI "turnstile status" command uses individual check functions
//     (CheckFaceEngine, CheckDirectoryAccess) to display service health.
//
// Failed checks are advisory. The daemon still starts so the engine can
// recover once the face engine or camera comes back.
package preflight
