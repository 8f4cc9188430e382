package eventloop

import "runtime"

// goroutineID returns the current goroutine's ID, parsed from the runtime
// stack trace header. Used only to detect reentrant calls to Run from the
// loop's own goroutine.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
