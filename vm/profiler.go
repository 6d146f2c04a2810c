package vm

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
)

// Profiler counts method invocations. It is attached with WithProfiler and
// may be read from another goroutine while the VM runs.

// MethodKey identifies a method by the class or module that defines it.
type MethodKey struct {
	Owner *RClass
	Mid   Symbol
}

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	Calls  uint64 // updated atomically
	Native bool
	IsHot  bool
}

// Profiler manages profiling for all methods called on one VM.
type Profiler struct {
	methods sync.Map // MethodKey -> *MethodProfile

	// HotThreshold is the call count at which OnHot fires.
	HotThreshold uint64
	OnHot        func(key MethodKey, profile *MethodProfile)

	hotCount uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 1000}
}

// Record counts one call. It reports whether the call made the method hot.
func (p *Profiler) Record(owner *RClass, mid Symbol, native bool) bool {
	if owner != nil && owner.IsIClass() {
		owner = owner.Module()
	}
	key := MethodKey{Owner: owner, Mid: mid}
	val, _ := p.methods.LoadOrStore(key, &MethodProfile{Native: native})
	profile := val.(*MethodProfile)

	count := atomic.AddUint64(&profile.Calls, 1)
	if !profile.IsHot && p.HotThreshold > 0 && count >= p.HotThreshold {
		profile.IsHot = true
		atomic.AddUint64(&p.hotCount, 1)
		if p.OnHot != nil {
			p.OnHot(key, profile)
		}
		return true
	}
	return false
}

// Profile returns the profile for a method, or nil if it was never called.
func (p *Profiler) Profile(owner *RClass, mid Symbol) *MethodProfile {
	if val, ok := p.methods.Load(MethodKey{Owner: owner, Mid: mid}); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Methods int    // distinct methods called
	Hot     int    // methods past the hot threshold
	Calls   uint64 // total calls
	Native  uint64 // calls to native methods
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methods.Range(func(_, value any) bool {
		profile := value.(*MethodProfile)
		n := atomic.LoadUint64(&profile.Calls)
		stats.Methods++
		stats.Calls += n
		if profile.Native {
			stats.Native += n
		}
		if profile.IsHot {
			stats.Hot++
		}
		return true
	})
	return stats
}

// MethodCount pairs a method with its call count.
type MethodCount struct {
	Key   MethodKey
	Calls uint64
}

// Top returns the n most frequently called methods, most frequent first.
// Ties are broken by symbol ID so the order is stable.
func (p *Profiler) Top(n int) []MethodCount {
	var all []MethodCount
	p.methods.Range(func(key, value any) bool {
		all = append(all, MethodCount{
			Key:   key.(MethodKey),
			Calls: atomic.LoadUint64(&value.(*MethodProfile).Calls),
		})
		return true
	})
	slices.SortFunc(all, func(x, y MethodCount) int {
		switch {
		case x.Calls != y.Calls:
			if x.Calls > y.Calls {
				return -1
			}
			return 1
		case x.Key.Mid != y.Key.Mid:
			return int(x.Key.Mid) - int(y.Key.Mid)
		}
		return 0
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.methods.Clear()
	atomic.StoreUint64(&p.hotCount, 0)
}

// ---------------------------------------------------------------------------
// Reporting
// ---------------------------------------------------------------------------

// MethodName renders a key as Owner#name.
func (vm *VM) MethodName(k MethodKey) string {
	if k.Owner == nil {
		return "#" + vm.Symbols.Name(k.Mid)
	}
	return vm.ClassName(k.Owner) + "#" + vm.Symbols.Name(k.Mid)
}

// WriteProfile prints the n most called methods of the attached profiler.
func (vm *VM) WriteProfile(w io.Writer, n int) {
	p := vm.opts.Profiler
	if p == nil {
		return
	}
	stats := p.Stats()
	fmt.Fprintf(w, "%d calls to %d methods (%d native)\n", stats.Calls, stats.Methods, stats.Native)
	for _, mc := range p.Top(n) {
		fmt.Fprintf(w, "%10d  %s\n", mc.Calls, vm.MethodName(mc.Key))
	}
}
