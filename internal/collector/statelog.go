package collector

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

// hookEntry is one line of the log written by the systemd sleep hooks.
type hookEntry struct {
	Ts          int64  `json:"ts"`
	Action      string `json:"action"`       // "pre" or "post"
	What        string `json:"what"`         // "suspend", "hibernate", "suspend-then-hibernate", "shutdown", ...
	SleepAction string `json:"sleep_action"` // SYSTEMD_SLEEP_ACTION
}

// ConsumeHookLog reads the hook log at path, removes it and returns the
// reconstructed power state periods. Periods still open (no "post" line,
// e.g. after hibernate or shutdown) end at now.
func ConsumeHookLog(logger *slog.Logger, now time.Time, path string) []PowerStateEvent {
	processing := path + ".processing"

	// The hooks append to path; moving it away first means lines written
	// while we read land in a fresh file.
	if err := os.Rename(path, processing); err != nil {
		if !os.IsNotExist(err) {
			logger.Error("rename hook log", "path", path, "err", err, "topic", "sleep")
		}
		return nil
	}
	defer os.Remove(processing)

	f, err := os.Open(processing)
	if err != nil {
		logger.Error("open hook log", "err", err, "topic", "sleep")
		return nil
	}
	defer f.Close()

	var entries []hookEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e hookEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			logger.Warn("skip malformed hook log line", "err", err, "topic", "sleep")
			continue
		}
		entries = append(entries, e)
	}
	return reconstructEvents(entries, now.Unix())
}

// CreditSleep records the time spent suspended or hibernated by events as
// cpu-suspend time. It returns the milliseconds credited.
func CreditSleep(sink Sink, events []PowerStateEvent) int64 {
	var total int64
	for _, e := range events {
		ms := e.SleepMs()
		if ms <= 0 {
			continue
		}
		sink.UpdateStatsTime(stats.TypeCPUSuspend, ms, 0, stats.InvalidUID)
		total += ms
	}
	return total
}

func reconstructEvents(entries []hookEntry, nowUnix int64) []PowerStateEvent {
	var events []PowerStateEvent
	for i := 0; i < len(entries); {
		ev, n := nextEvent(entries[i:], nowUnix)
		if n == 0 {
			// a "post" without its "pre"
			i++
			continue
		}
		events = append(events, ev)
		i += n
	}
	return events
}

// nextEvent decodes the period starting at entries[0]. It returns the number
// of entries used, 0 when entries[0] does not open a period.
func nextEvent(entries []hookEntry, nowUnix int64) (PowerStateEvent, int) {
	pre := entries[0]
	if pre.Action != "pre" {
		return PowerStateEvent{}, 0
	}

	switch pre.What {
	case "shutdown":
		return PowerStateEvent{StartTime: pre.Ts, EndTime: nowUnix, Type: "shutdown"}, 1
	case "suspend-then-hibernate":
		return suspendThenHibernate(entries, nowUnix)
	}

	kind := pre.SleepAction
	if kind == "" {
		kind = pre.What
	}
	if len(entries) > 1 && entries[1].Action == "post" {
		return sleepPeriod(kind, pre.Ts, entries[1].Ts), 2
	}
	return sleepPeriod(kind, pre.Ts, nowUnix), 1
}

func sleepPeriod(kind string, start, end int64) PowerStateEvent {
	ev := PowerStateEvent{StartTime: start, EndTime: end, Type: kind}
	if kind == "hibernate" {
		ev.HibernateSecs = end - start
	} else {
		ev.SuspendSecs = end - start
	}
	return ev
}

// suspendThenHibernate decodes the up to four hook calls of a
// suspend-then-hibernate cycle:
//
//	pre suspend, post suspend, pre hibernate, post hibernate
//
// A cycle the user ends before the hibernate timer is a plain suspend.
func suspendThenHibernate(entries []hookEntry, nowUnix int64) (PowerStateEvent, int) {
	start := entries[0].Ts
	at := func(i int, action, sleepAction string) bool {
		return i < len(entries) && entries[i].Action == action && entries[i].SleepAction == sleepAction
	}

	if !at(1, "post", "suspend") {
		return PowerStateEvent{StartTime: start, EndTime: nowUnix, Type: "suspend", SuspendSecs: nowUnix - start}, 1
	}
	woke := entries[1].Ts
	if !at(2, "pre", "hibernate") {
		return PowerStateEvent{StartTime: start, EndTime: woke, Type: "suspend", SuspendSecs: woke - start}, 2
	}

	hibStart := entries[2].Ts
	end, used := nowUnix, 3
	if at(3, "post", "hibernate") {
		end, used = entries[3].Ts, 4
	}
	return PowerStateEvent{
		StartTime:     start,
		EndTime:       end,
		Type:          "suspend-then-hibernate",
		SuspendSecs:   woke - start,
		HibernateSecs: end - hibStart,
	}, used
}
