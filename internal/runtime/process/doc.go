// Package process provides a runtime implementation that supervises local
// processes and binds each worker's lifetime to the supervisor.
//
// Two runtimes are registered. "process" binds from the parent side: on Linux
// the child gets a parent-death signal installed between fork and exec, on
// Windows it is assigned to the supervisor's kill-on-close job object right
// after creation. "wrapped" launches the worker through `tether exec --`, which
// binds itself and then execs the real command.
//
// Linux delivers the parent-death signal when the thread that forked the child
// exits, not the process. Each worker is therefore started and waited on from
// a goroutine that stays locked to its OS thread for the worker's lifetime.
//
// Graceful stop signals the whole process group on Unix. On Windows the
// interrupt reaches only the direct child; the job object takes care of the
// rest of the tree when the supervisor exits.
package process
