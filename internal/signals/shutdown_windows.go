//go:build windows

package signals

import "os"

// Console programs see Ctrl+Break (and Ctrl+C) as os.Interrupt.
var shutdownSignal = os.Interrupt
