package pool

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// leakDetector optionally tracks allocation/free call sites so a caller can
// diagnose use-after-free and leaked nodes. It samples
// roughly 1-in-N allocations by default; sampleEvery == 1 means "paranoid"
// mode, tracking every allocation.
//
// The sampling decision is made deterministic per call site rather than by
// a counter: each allocation's call stack is hashed with blake2b into an
// 8-byte key, and the node is tracked iff that key's low bits land in the
// sampled bucket. This means the same call site is either always or never
// sampled within a run, which makes leak reports reproducible across runs
// that allocate the same shapes of trees.
type leakDetector struct {
	sampleEvery int

	mu      sync.Mutex
	tracked map[NodeId]history
}

type history struct {
	allocStack string
	allocs     int
	frees      int
}

func newLeakDetector(sampleEvery int) *leakDetector {
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &leakDetector{
		sampleEvery: sampleEvery,
		tracked:     make(map[NodeId]history),
	}
}

func callStack(skip int) string {
	pc := make([]uintptr, 16)
	n := runtime.Callers(skip+2, pc)
	frames := runtime.CallersFrames(pc[:n])
	out := ""
	for {
		f, more := frames.Next()
		out += fmt.Sprintf("%s:%d\n", f.File, f.Line)
		if !more {
			break
		}
	}
	return out
}

func sampleKey(stack string) uint64 {
	sum := blake2b.Sum256([]byte(stack))
	var k uint64
	for i := 0; i < 8; i++ {
		k = k<<8 | uint64(sum[i])
	}
	return k
}

func (l *leakDetector) shouldSample(stack string) bool {
	if l.sampleEvery <= 1 {
		return true
	}
	return sampleKey(stack)%uint64(l.sampleEvery) == 0
}

func (l *leakDetector) onAlloc(id NodeId) {
	stack := callStack(1)
	if !l.shouldSample(stack) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.tracked[id]
	h.allocStack = stack
	h.allocs++
	l.tracked[id] = h
}

func (l *leakDetector) onFree(id NodeId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.tracked[id]; ok {
		h.frees++
		l.tracked[id] = h
	}
}

// Report returns, for every sampled node still tracked with more allocations
// than frees, the source location of its allocation. A non-empty report
// from a pool that should be fully drained indicates a leak.
func (l *leakDetector) Report() map[NodeId]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[NodeId]string)
	for id, h := range l.tracked {
		if h.allocs > h.frees {
			out[id] = h.allocStack
		}
	}
	return out
}

// LeakReport exposes the pool's leak detector, if enabled. Returns nil if
// leak detection was not configured via New.
func (p *Pool) LeakReport() map[NodeId]string {
	if p.leak == nil {
		return nil
	}
	return p.leak.Report()
}
