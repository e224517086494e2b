package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/calibration"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/config"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/logging"
)

func main() {
	profilePath := pflag.StringP("profile", "p", config.DefaultConfig().Profile.Path, "power profile to update")
	outPath := pflag.StringP("output", "o", "", "also write the raw calibration result as JSON to this file")
	settle := pflag.Duration("settle", 3*time.Minute, "maximum wait for readings to stabilize after each change")
	sample := pflag.Duration("sample", 30*time.Second, "averaging window per brightness level")
	dryRun := pflag.Bool("dry-run", false, "print the fitted values without updating the profile")
	verbose := pflag.BoolP("verbose", "v", false, "log stabilization progress")
	pflag.Parse()

	if os.Geteuid() != 0 {
		log.Fatal("power-calibrate must be run as root (needed for backlight control)")
	}

	var logger *slog.Logger
	if *verbose {
		logger = logging.New(os.Stderr, nil)
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	fmt.Println("=== Battery Stats Display Calibration ===")
	fmt.Println()
	fmt.Println("This tool measures the display's current draw at several brightness levels")
	fmt.Println("and writes screen.on and screen.brightness into the power profile.")
	fmt.Println()
	fmt.Println("Before pressing Enter, please:")
	fmt.Println("  1. Close ALL unnecessary programs (browser, IDE, etc.)")
	fmt.Println("  2. Turn off WiFi and Bluetooth")
	fmt.Println("  3. Unplug all external devices (USB, monitors, etc.)")
	fmt.Println("  4. Ensure the laptop is running on battery (unplug AC adapter)")
	fmt.Println()
	fmt.Println("IMPORTANT: Do not touch the laptop once calibration starts.")
	fmt.Println()
	fmt.Print("Press Enter when ready...")
	bufio.NewReader(os.Stdin).ReadBytes('\n')
	fmt.Println()

	origPct, err := calibration.GetBrightness()
	if err != nil {
		log.Fatalf("get brightness: %v", err)
	}
	defer func() {
		fmt.Printf("Restoring brightness to %d%%\n", origPct)
		calibration.SetPanelPower(true)
		calibration.SetBrightness(origPct)
	}()

	reader := calibration.BatteryReader{}
	measure := func() (float64, error) {
		if _, err := calibration.WaitForStable(reader, time.Second, *settle, logger); err != nil {
			return 0, err
		}
		return calibration.MeasureCurrentOverWindow(reader, *sample, 500*time.Millisecond)
	}

	fmt.Println("[1/3] Measuring baseline with the panel off...")
	if err := calibration.SetPanelPower(false); err != nil {
		log.Fatalf("blank panel: %v", err)
	}
	baseline, err := measure()
	if err != nil {
		calibration.SetPanelPower(true)
		log.Fatalf("measure baseline: %v", err)
	}
	if err := calibration.SetPanelPower(true); err != nil {
		log.Fatalf("unblank panel: %v", err)
	}
	fmt.Printf("       baseline: %.1f mA\n", baseline)
	fmt.Println()

	levels := []int{0, 25, 50, 75, 100}
	var samples []calibration.BrightnessSample
	fmt.Printf("[2/3] Measuring current at %d brightness levels...\n", len(levels))
	for i, pct := range levels {
		fmt.Printf("       Level %d/%d: brightness %d%%...", i+1, len(levels), pct)
		if err := calibration.SetBrightness(pct); err != nil {
			log.Fatalf("set brightness %d%%: %v", pct, err)
		}
		avg, err := measure()
		if err != nil {
			log.Fatalf("measure at %d%%: %v", pct, err)
		}
		fmt.Printf(" avg: %.1f mA\n", avg)
		samples = append(samples, calibration.BrightnessSample{BrightnessPct: pct, CurrentMa: avg})
	}
	fmt.Println()

	screen, err := calibration.Fit(baseline, samples)
	if err != nil {
		log.Fatalf("fit: %v", err)
	}
	result := calibration.Result{
		BaselineMa:   baseline,
		Samples:      samples,
		Screen:       screen,
		CalibratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if *outPath != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("marshal result: %v", err)
		}
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			log.Fatalf("write result: %v", err)
		}
	}

	if *dryRun {
		fmt.Println("[3/3] Dry run, profile not updated.")
	} else {
		if err := calibration.Apply(*profilePath, screen); err != nil {
			log.Fatalf("update profile: %v", err)
		}
		fmt.Printf("[3/3] Calibration complete! Profile updated:\n")
		fmt.Printf("       %s\n", *profilePath)
	}
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Baseline:          %.1f mA (panel off)\n", baseline)
	fmt.Printf("  screen.on:         %.2f mA\n", screen.OnMa)
	fmt.Printf("  screen.brightness: %.3f mA per %%\n", screen.BrightnessMa)
	for _, s := range samples {
		fmt.Printf("  Brightness %3d%%:   %.1f mA total (%.1f mA display)\n",
			s.BrightnessPct, s.CurrentMa, s.CurrentMa-baseline)
	}
}
