package crypto

import "runtime"

// Wipe overwrites a byte slice holding secret material with zeros.
//
// This is best-effort only: the Go runtime may have copied the data during
// garbage collection or stack growth before the wipe runs, so erasure is not
// guaranteed. Call it as soon as a secret buffer is no longer needed.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	// Prevent the compiler from eliding the writes above.
	runtime.KeepAlive(b)
}

// WipeAll wipes multiple buffers.
func WipeAll(bufs ...[]byte) {
	for _, b := range bufs {
		Wipe(b)
	}
}
