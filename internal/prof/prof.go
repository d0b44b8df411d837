// Package prof wraps the runtime profilers behind one start/stop pair.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
)

// Options names the output files. An empty path disables that profiler.
type Options struct {
	CPU   string
	Mem   string
	Trace string
}

// Enabled reports whether any profiler is requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Mem != "" || o.Trace != ""
}

// Profiler owns the running profilers until Stop.
type Profiler struct {
	opts      Options
	cpuFile   *os.File
	traceFile *os.File
	once      sync.Once
	stopErr   error
}

// Start enables the profilers named in opts. On error nothing is left
// running.
func Start(opts Options) (*Profiler, error) {
	p := &Profiler{opts: opts}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		p.cpuFile = f
	}
	if opts.Trace != "" {
		f, err := os.Create(opts.Trace)
		if err != nil {
			p.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			p.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		p.traceFile = f
	}
	return p, nil
}

// Stop ends the trace and the CPU profile, then writes the heap profile.
// Later calls return the first result.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		var errs []error
		if p.traceFile != nil {
			trace.Stop()
			errs = append(errs, p.traceFile.Close())
			p.traceFile = nil
		}
		errs = append(errs, p.stopCPU())
		if p.opts.Mem != "" {
			errs = append(errs, writeHeap(p.opts.Mem))
		}
		p.stopErr = errors.Join(errs...)
	})
	return p.stopErr
}

func (p *Profiler) stopCPU() error {
	if p.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	return err
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}
