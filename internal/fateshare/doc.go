// Package fateshare binds the lifetime of spawned worker processes to the
// lifetime of the supervisor that spawned them.
//
// Two kernel primitives are supported, and they point in opposite directions:
//
//   - On Linux the child declares its own fate. Either the child calls
//     BindChildToParent before replacing its image, or the parent calls
//     Prepare on the exec.Cmd so the Go runtime issues prctl(PR_SET_PDEATHSIG)
//     in the forked child before execve.
//   - On Windows the parent declares the child's fate. Attach (or BindProcess)
//     assigns a freshly started child to a job object created with
//     KILL_ON_JOB_CLOSE, so losing the supervisor tears the whole job down.
//
// Neither direction can be emulated with the other, so both entry points are
// exported on every platform and callers check Detect before relying on them.
// Using a bind entry point that the platform cannot honor panics with a
// *ContractViolation: a caller that believes its children share its fate must
// not silently run without that guarantee.
//
// Pdeathsig is delivered when the *thread* that forked the child exits, not the
// process. Callers that spawn through Prepare must keep the spawning goroutine
// locked to its OS thread for as long as the child runs.
package fateshare
