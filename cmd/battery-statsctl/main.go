package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	dbussvc "github.com/cptspacemanspiff/gnome-battery-stats/internal/dbus"
)

const usage = `usage: battery-statsctl [flags] <command> [args]

commands:
  stats                 consumption breakdown (default)
  app <uid>             consumption of one app
  part <category>       consumption of one category
  time <type> [uid]     active time of a stat type, in seconds
  count <type> [uid]    event count of a stat type
  history               recorded consumption samples (see --since)
  events                suspend and hibernate periods (see --since)
  dump                  full daemon state
  reset                 zero all statistics

flags:
`

func main() {
	since := pflag.Duration("since", 24*time.Hour, "time range for history and events")
	jsonOut := pflag.Bool("json", false, "print raw values as JSON where available")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	cmd := "stats"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	client, err := newDBusClient()
	if err != nil {
		fatal(err)
	}
	defer client.conn.Close()

	if err := run(client, os.Stdout, cmd, args, *since, *jsonOut); err != nil {
		fatal(err)
	}
}

func run(c *dbusClient, w io.Writer, cmd string, args []string, since time.Duration, jsonOut bool) error {
	to := time.Now()
	from := to.Add(-since)

	switch cmd {
	case "stats":
		entries, err := c.GetBatteryStats()
		if err != nil {
			return err
		}
		total, err := c.GetTotalPowerMah()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(w, entries)
		}
		printStats(w, entries, total)
	case "app":
		uid, err := argUID(args, 0, true)
		if err != nil {
			return err
		}
		mah, ratio, err := c.GetAppStats(uid)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "uid %d: %.3f mAh (%.1f%%)\n", uid, mah, 100*ratio)
	case "part":
		if len(args) < 1 {
			return fmt.Errorf("part: category required")
		}
		mah, ratio, err := c.GetPartStats(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %.3f mAh (%.1f%%)\n", args[0], mah, 100*ratio)
	case "time", "count":
		if len(args) < 1 {
			return fmt.Errorf("%s: stat type required", cmd)
		}
		uid, err := argUID(args, 1, false)
		if err != nil {
			return err
		}
		if cmd == "time" {
			secs, err := c.GetTotalTimeSecond(args[0], uid)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s: %v\n", args[0], time.Duration(secs)*time.Second)
			return nil
		}
		n, err := c.GetTotalDataCount(args[0], uid)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d\n", args[0], n)
	case "history":
		samples, err := c.GetHistory(from, to)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(w, samples)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tCATEGORY\tUID\tMAH")
		for _, s := range samples {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\n", time.Unix(s.Timestamp, 0).Format(time.DateTime), s.Category, uidLabel(int32(s.UID)), s.PowerMah)
		}
		tw.Flush()
	case "events":
		events, err := c.GetPowerStateEvents(from, to)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(w, events)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "START\tEND\tTYPE\tSUSPEND\tHIBERNATE")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\n",
				time.Unix(e.StartTime, 0).Format(time.DateTime),
				time.Unix(e.EndTime, 0).Format(time.DateTime),
				e.Type,
				time.Duration(e.SuspendSecs)*time.Second,
				time.Duration(e.HibernateSecs)*time.Second)
		}
		tw.Flush()
	case "dump":
		text, err := c.Dump()
		if err != nil {
			return err
		}
		fmt.Fprint(w, text)
	case "reset":
		if err := c.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(w, "statistics reset")
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func printStats(w io.Writer, entries []dbussvc.StatsEntry, total float64) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tUID\tMAH\tSHARE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.1f%%\n", e.Category, uidLabel(e.UID), e.PowerMah, 100*e.Percent)
	}
	fmt.Fprintf(tw, "total\t\t%.3f\t\n", total)
	tw.Flush()
}

func uidLabel(uid int32) string {
	if uid < 0 {
		return "-"
	}
	return strconv.Itoa(int(uid))
}

// argUID parses args[i] as a uid. A missing optional uid means every uid.
func argUID(args []string, i int, required bool) (int32, error) {
	if len(args) <= i {
		if required {
			return 0, fmt.Errorf("uid required")
		}
		return -1, nil
	}
	v, err := strconv.ParseInt(args[i], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q: %w", args[i], err)
	}
	return int32(v), nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "battery-statsctl:", err)
	os.Exit(1)
}
