package transform

import (
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryGuard reports available process memory so the pipeline can decide
// between the standard and the chunked encode strategy.
type MemoryGuard interface {
	Available() (uint64, bool)
}

// systemMemoryGuard reads the host's available memory via gopsutil.
type systemMemoryGuard struct{}

// NewSystemMemoryGuard returns the gopsutil-backed guard.
func NewSystemMemoryGuard() MemoryGuard {
	return systemMemoryGuard{}
}

func (systemMemoryGuard) Available() (uint64, bool) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, false
	}
	return vm.Available, true
}

// encodeChunkSize is the fixed block size of the chunked encode writer.
const encodeChunkSize = 256 * 1024

// chunkWriter accumulates encoder output in fixed-size blocks instead of
// one repeatedly doubling buffer, keeping peak allocation bounded while a
// large image is being encoded under memory pressure.
type chunkWriter struct {
	chunks [][]byte
	last   []byte
	size   int
}

func newChunkWriter() *chunkWriter {
	return &chunkWriter{}
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		if len(w.last) == cap(w.last) {
			w.last = make([]byte, 0, encodeChunkSize)
			w.chunks = append(w.chunks, nil)
		}
		n := cap(w.last) - len(w.last)
		if n > len(p) {
			n = len(p)
		}
		w.last = append(w.last, p[:n]...)
		w.chunks[len(w.chunks)-1] = w.last
		p = p[n:]
	}
	w.size += written
	return written, nil
}

// Bytes assembles the blocks into the final payload with a single copy.
func (w *chunkWriter) Bytes() []byte {
	out := make([]byte, 0, w.size)
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	return out
}
