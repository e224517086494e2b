package dbus

import (
	"encoding/json"
	"fmt"
	"strings"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/collector"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/core"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/storage"
)

const (
	BusName   = "org.gnome.BatteryStats"
	ObjPath   = "/org/gnome/BatteryStats"
	IfaceName = "org.gnome.BatteryStats"

	maxRangeSeconds = 86400 * 365
)

const introspectXML = `
<node>
  <interface name="` + IfaceName + `">
    <method name="GetBatteryStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetTotalPowerMah">
      <arg direction="out" type="d" name="mah"/>
    </method>
    <method name="GetAppStatsMah">
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="d" name="mah"/>
    </method>
    <method name="GetAppStatsPercent">
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="d" name="ratio"/>
    </method>
    <method name="GetPartStatsMah">
      <arg direction="in" type="s" name="category"/>
      <arg direction="out" type="d" name="mah"/>
    </method>
    <method name="GetPartStatsPercent">
      <arg direction="in" type="s" name="category"/>
      <arg direction="out" type="d" name="ratio"/>
    </method>
    <method name="GetTotalTimeSecond">
      <arg direction="in" type="s" name="stat_type"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="x" name="seconds"/>
    </method>
    <method name="GetTotalDataCount">
      <arg direction="in" type="s" name="stat_type"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="x" name="count"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetPowerStateEvents">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="Dump">
      <arg direction="out" type="s" name="text"/>
    </method>
    <method name="Reset"/>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// History is the stored time series the service reads.
type History interface {
	PartSamplesInRange(from, to int64) ([]storage.PartSample, error)
	PowerStateEventsInRange(from, to int64) ([]collector.PowerStateEvent, error)
}

// StatsEntry is one line of GetBatteryStats.
type StatsEntry struct {
	Category string  `json:"category"`
	UID      int32   `json:"uid"`
	PowerMah float64 `json:"power_mah"`
	Percent  float64 `json:"percent"`
}

// Service exposes the battery stats core over D-Bus.
type Service struct {
	core    *core.Core
	history History
}

// NewService creates a new D-Bus service. history may be nil, in which case
// the history methods return empty results.
func NewService(c *core.Core, history History) *Service {
	return &Service{core: c, history: history}
}

// Export registers the service on the system bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	conn.Export(s, ObjPath, IfaceName)
	conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable")

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("name %s already taken", BusName)
	}

	return conn, nil
}

// GetBatteryStats returns the consumption breakdown as a JSON array.
func (s *Service) GetBatteryStats() (string, *godbus.Error) {
	s.core.ComputePower()
	total := s.core.GetTotalPowerMah()
	entries := []StatsEntry{}
	for _, info := range s.core.GetBatteryStats() {
		entries = append(entries, StatsEntry{
			Category: info.Category.String(),
			UID:      info.UID,
			PowerMah: info.PowerMah,
			Percent:  stats.Ratio(info.PowerMah, total),
		})
	}
	return marshal(entries)
}

func (s *Service) GetTotalPowerMah() (float64, *godbus.Error) {
	s.core.ComputePower()
	return s.core.GetTotalPowerMah(), nil
}

func (s *Service) GetAppStatsMah(uid int32) (float64, *godbus.Error) {
	s.core.ComputePower()
	return s.core.GetAppStatsMah(uid), nil
}

func (s *Service) GetAppStatsPercent(uid int32) (float64, *godbus.Error) {
	s.core.ComputePower()
	return s.core.GetAppStatsPercent(uid), nil
}

func (s *Service) GetPartStatsMah(category string) (float64, *godbus.Error) {
	cat, err := stats.ParseCategory(category)
	if err != nil {
		return 0, godbus.MakeFailedError(err)
	}
	s.core.ComputePower()
	return s.core.GetPartStatsMah(cat), nil
}

func (s *Service) GetPartStatsPercent(category string) (float64, *godbus.Error) {
	cat, err := stats.ParseCategory(category)
	if err != nil {
		return 0, godbus.MakeFailedError(err)
	}
	s.core.ComputePower()
	return s.core.GetPartStatsPercent(cat), nil
}

// GetTotalTimeSecond returns the active time of statType for uid, or for
// every uid when uid is negative.
func (s *Service) GetTotalTimeSecond(statType string, uid int32) (int64, *godbus.Error) {
	t, err := stats.ParseType(statType)
	if err != nil {
		return 0, godbus.MakeFailedError(err)
	}
	return s.core.GetTotalTimeSecond(t, normalizeUID(uid)), nil
}

func (s *Service) GetTotalDataCount(statType string, uid int32) (int64, *godbus.Error) {
	t, err := stats.ParseType(statType)
	if err != nil {
		return 0, godbus.MakeFailedError(err)
	}
	return s.core.GetTotalDataCount(t, normalizeUID(uid)), nil
}

// GetHistory returns recorded consumption samples in a time range as JSON.
func (s *Service) GetHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	samples := []storage.PartSample{}
	if s.history != nil {
		got, err := s.history.PartSamplesInRange(fromEpoch, toEpoch)
		if err != nil {
			return "", godbus.MakeFailedError(err)
		}
		samples = append(samples, got...)
	}
	return marshal(samples)
}

// GetPowerStateEvents returns suspend/hibernate events in a time range as JSON.
func (s *Service) GetPowerStateEvents(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	events := []collector.PowerStateEvent{}
	if s.history != nil {
		got, err := s.history.PowerStateEventsInRange(fromEpoch, toEpoch)
		if err != nil {
			return "", godbus.MakeFailedError(err)
		}
		events = append(events, got...)
	}
	return marshal(events)
}

// Dump returns the human-readable state dump.
func (s *Service) Dump() (string, *godbus.Error) {
	s.core.ComputePower()
	var b strings.Builder
	s.core.DumpInfo(&b)
	return b.String(), nil
}

// Reset zeroes all accumulated statistics.
func (s *Service) Reset() *godbus.Error {
	s.core.Reset()
	return nil
}

func normalizeUID(uid int32) int32 {
	if uid < 0 {
		return stats.InvalidUID
	}
	return uid
}

func validateRange(from, to int64) *godbus.Error {
	switch {
	case from < 0:
		return godbus.MakeFailedError(fmt.Errorf("from_epoch must not be negative, got %d", from))
	case to < from:
		return godbus.MakeFailedError(fmt.Errorf("to_epoch %d is before from_epoch %d", to, from))
	case to-from > maxRangeSeconds:
		return godbus.MakeFailedError(fmt.Errorf("range of %ds exceeds %ds", to-from, maxRangeSeconds))
	}
	return nil
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}
