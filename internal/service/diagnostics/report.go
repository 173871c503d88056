// Package diagnostics writes crash reports next to the event spine.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"RegimeDesk/internal/repository"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Crash describes a fatal failure.
type Crash struct {
	At      time.Time
	Type    string
	Message string
	Stack   []byte
	// LastTickID is the last id issued before the failure.
	LastTickID int64
	Assets     []string
}

// Reporter writes one text report per crash. Existing reports are never
// overwritten.
type Reporter struct {
	layout  repository.Layout
	version string
}

func NewReporter(layout repository.Layout, version string) *Reporter {
	return &Reporter{layout: layout, version: version}
}

// Write renders c and stores it under a fresh crash_<stamp>.txt name,
// returning the path.
func (r *Reporter) Write(ctx context.Context, c Crash) (string, error) {
	path, err := r.Reserve(c.At)
	if err != nil {
		return "", err
	}
	if err := r.WriteAt(ctx, path, c); err != nil {
		return "", err
	}
	return path, nil
}

// WriteAt renders c into path, normally one returned by Reserve.
func (r *Reporter) WriteAt(ctx context.Context, path string, c Crash) error {
	if err := repository.WriteFileAtomic(path, []byte(r.render(ctx, c)), 0o644); err != nil {
		return fmt.Errorf("write crash report: %w", err)
	}
	return nil
}

// Reserve picks the first unused crash_<stamp>[.N].txt name for at. Nothing
// is created on disk.
func (r *Reporter) Reserve(at time.Time) (string, error) {
	base := r.layout.CrashReport(at)
	path := base
	for i := 1; i < 1000; i++ {
		if _, err := os.Stat(path); repository.IsNotExist(err) {
			return path, nil
		}
		path = fmt.Sprintf("%s.%d.txt", strings.TrimSuffix(base, ".txt"), i)
	}
	return "", fmt.Errorf("no free crash report name for %s", base)
}

func (r *Reporter) render(ctx context.Context, c Crash) string {
	var b strings.Builder
	host, _ := os.Hostname()

	fmt.Fprintf(&b, "crash report\n")
	fmt.Fprintf(&b, "time:         %s\n", c.At.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "version:      %s\n", r.version)
	fmt.Fprintf(&b, "host:         %s\n", host)
	fmt.Fprintf(&b, "pid:          %d\n", os.Getpid())
	fmt.Fprintf(&b, "go:           %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "type:         %s\n", c.Type)
	fmt.Fprintf(&b, "message:      %s\n", c.Message)
	fmt.Fprintf(&b, "last_tick_id: %d\n", c.LastTickID)
	fmt.Fprintf(&b, "assets:       %s\n", strings.Join(c.Assets, ","))

	b.WriteString("\n[resources]\n")
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	fmt.Fprintf(&b, "goroutines:   %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "heap_alloc:   %d\n", ms.HeapAlloc)
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		fmt.Fprintf(&b, "cpu_count:    %d\n", n)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fmt.Fprintf(&b, "mem_total:    %d\n", vm.Total)
		fmt.Fprintf(&b, "mem_used_pct: %.1f\n", vm.UsedPercent)
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			fmt.Fprintf(&b, "proc_rss:     %d\n", mi.RSS)
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			fmt.Fprintf(&b, "proc_threads: %d\n", n)
		}
		if n, err := p.NumFDsWithContext(ctx); err == nil {
			fmt.Fprintf(&b, "proc_fds:     %d\n", n)
		}
	}

	b.WriteString("\n[stack]\n")
	stack := c.Stack
	if len(stack) == 0 {
		stack = make([]byte, 64*1024)
		stack = stack[:runtime.Stack(stack, true)]
	}
	b.Write(stack)
	if len(stack) > 0 && stack[len(stack)-1] != '\n' {
		b.WriteByte('\n')
	}
	return b.String()
}
