package collector

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

func writeProc(t *testing.T, root string, pid int, comm string, utime, stime int64, uid int) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(pid))
	// state ppid pgrp session tty tpgid flags minflt cminflt majflt cmajflt utime stime ...
	stat := fmt.Sprintf("%d (%s) S 1 1 1 0 -1 4194560 100 0 0 0 %d %d 0 0 20 0 1 0 100 1000 10 18446744073709551615 0 0 0 0 0 0 0 0 0 0 0 0 17 3 0 0\n", pid, comm, utime, stime)
	writeTestFile(t, filepath.Join(dir, "stat"), stat)
	status := fmt.Sprintf("Name:\t%s\nUmask:\t0022\nState:\tS (sleeping)\nUid:\t%d\t%d\t%d\t%d\nGid:\t100\t100\t100\t100\n", comm, uid, uid, uid, uid)
	writeTestFile(t, filepath.Join(dir, "status"), status)
}

func TestProcessCollector_PerUIDDeltas(t *testing.T) {
	root := setTestProcRoot(t)
	writeProc(t, root, 100, "firefox", 10, 5, 1000)
	writeProc(t, root, 101, "Web Content (x)", 20, 0, 1000)
	writeProc(t, root, 200, "systemd", 50, 50, 0)
	writeProc(t, root, 300, "steam", 1, 1, 1001)
	writeTestFile(t, filepath.Join(root, "uptime"), "123.4 100.0\n")

	pc := NewProcessCollector(1000)
	first, err := pc.Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(first) != 0 {
		t.Fatalf("first Collect() = %v, want no samples", first)
	}

	writeProc(t, root, 100, "firefox", 30, 10, 1000)        // +25
	writeProc(t, root, 101, "Web Content (x)", 25, 0, 1000) // +5
	writeProc(t, root, 200, "systemd", 90, 60, 0)           // system uid, dropped
	writeProc(t, root, 300, "steam", 3, 2, 1001)            // +3
	writeProc(t, root, 400, "new", 500, 500, 1002)          // first observation

	got, err := pc.Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	want := []UIDSample{
		{UID: 1000, Ticks: 30, TimeMs: 300},
		{UID: 1001, Ticks: 3, TimeMs: 30},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Collect() = %#v, want %#v", got, want)
	}
}

func TestProcessCollector_ConcurrentCollect(t *testing.T) {
	root := setTestProcRoot(t)
	writeProc(t, root, 100, "firefox", 10, 0, 1000)

	pc := NewProcessCollector(1000)
	if _, err := pc.Collect(); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	writeProc(t, root, 100, "firefox", 60, 0, 1000) // +50

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				samples, err := pc.Collect()
				if err != nil {
					t.Errorf("Collect() error = %v", err)
					return
				}
				mu.Lock()
				for _, s := range samples {
					total += s.Ticks
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The delta is reported by exactly one of the overlapping calls.
	if total != 50 {
		t.Fatalf("ticks reported = %d, want 50", total)
	}
}

func TestProcessCollector_MissingProc(t *testing.T) {
	root := setTestProcRoot(t)
	procRoot = filepath.Join(root, "missing")

	if _, err := NewProcessCollector(0).Collect(); err == nil {
		t.Fatal("Collect() error = nil, want error")
	}
}

func TestReadProcTicks_Malformed(t *testing.T) {
	root := setTestProcRoot(t)
	writeTestFile(t, filepath.Join(root, "7", "stat"), "7 (short) S 1 2\n")
	if _, err := readProcTicks(7); err == nil {
		t.Fatal("readProcTicks() error = nil, want too few fields")
	}
}

func TestCreditCPU(t *testing.T) {
	sink := &recordingSink{}
	CreditCPU(sink, []UIDSample{{UID: 1000, Ticks: 30, TimeMs: 300}})
	want := []timeUpdate{{stats.TypeCPUActive, 300, 0, 1000}}
	if !reflect.DeepEqual(sink.times, want) {
		t.Fatalf("updates = %#v, want %#v", sink.times, want)
	}
}
