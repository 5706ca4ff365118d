// Package profiling serves pprof endpoints and runtime statistics.
//
// The pprof endpoints expose goroutine stacks and memory contents. They are
// off by default and should only be enabled on internal listeners.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// DefaultPath is where the pprof handlers are mounted
const DefaultPath = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int
	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// Handler returns the pprof handlers, relative to their mount point
func Handler(config Config) http.Handler {
	runtime.SetBlockProfileRate(config.BlockRate)
	runtime.SetMutexProfileFraction(config.MutexFraction)

	r := chi.NewRouter()
	r.HandleFunc("/", pprof.Index)
	r.HandleFunc("/cmdline", pprof.Cmdline)
	r.HandleFunc("/profile", pprof.Profile)
	r.HandleFunc("/symbol", pprof.Symbol)
	r.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		r.Handle("/"+name, pprof.Handler(name))
	}
	return r
}

// Stats is a snapshot of runtime counters
type Stats struct {
	Goroutines int    `json:"goroutines"`
	Alloc      uint64 `json:"alloc_bytes"`
	TotalAlloc uint64 `json:"total_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
	NumCPU     int    `json:"num_cpu"`
}

// RuntimeStats returns current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Goroutines: runtime.NumGoroutine(),
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		NumCPU:     runtime.NumCPU(),
	}
}
