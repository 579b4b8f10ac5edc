package fateshare

// Job object limit flags from <WinNT.h>.
const (
	jobLimitDieOnUnhandledException = 0x00000400
	jobLimitBreakawayOK             = 0x00000800
	jobLimitKillOnJobClose          = 0x00002000
)

// jobLimitFlags returns the limit flags for the supervisor's job object. A
// debugged process leaves out kill-on-close so detaching the debugger does
// not take every worker down with it.
func jobLimitFlags(debuggerAttached bool) uint32 {
	flags := uint32(jobLimitDieOnUnhandledException | jobLimitBreakawayOK)
	if !debuggerAttached {
		flags |= jobLimitKillOnJobClose
	}
	return flags
}
