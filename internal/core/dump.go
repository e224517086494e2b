package core

import (
	"fmt"
	"io"
)

// DumpInfo writes a human-readable summary of every category, the app
// breakdown, the raw accumulators and the debug buffer.
func (c *Core) DumpInfo(w io.Writer) {
	total := c.GetTotalPowerMah()
	fmt.Fprintln(w, "BATTERY STATS:")
	fmt.Fprintf(w, "  on battery: %t, screen off: %t, time on battery: %dms\n",
		c.gate.IsOnBattery(), c.gate.IsScreenOff(), c.gate.GetOnBatteryUpTimeMs())
	fmt.Fprintf(w, "  total: %.6fmAh\n", total)

	fmt.Fprintln(w, "BREAKDOWN:")
	for _, info := range c.GetBatteryStats() {
		if info.UID >= 0 {
			fmt.Fprintf(w, "  uid %d: %.6fmAh (%.2f%%)\n", info.UID, info.PowerMah, 100*c.GetAppStatsPercent(info.UID))
			continue
		}
		fmt.Fprintf(w, "  %s: %.6fmAh\n", info.Category, info.PowerMah)
	}

	fmt.Fprintln(w, "CATEGORIES:")
	for _, cat := range c.order {
		fmt.Fprintf(w, "  %s: %.6fmAh (%.2f%%)\n", cat, c.GetPartStatsMah(cat), 100*c.GetPartStatsPercent(cat))
	}

	fmt.Fprintln(w, "DETAILS:")
	for _, cat := range c.order {
		c.aggs[cat].DumpInfo(w)
	}

	if debug := c.GetDebugInfo(); debug != "" {
		fmt.Fprintln(w, "DEBUG INFO:")
		fmt.Fprintln(w, debug)
	}
}
