package main

import (
	"encoding/json"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/collector"
	dbussvc "github.com/cptspacemanspiff/gnome-battery-stats/internal/dbus"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/storage"
)

type dbusClient struct {
	conn *godbus.Conn
	obj  godbus.BusObject
}

func newDBusClient() (*dbusClient, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	obj := conn.Object(dbussvc.BusName, dbussvc.ObjPath)
	return &dbusClient{conn: conn, obj: obj}, nil
}

func (c *dbusClient) call(method string, out any, args ...any) error {
	return c.obj.Call(dbussvc.IfaceName+"."+method, 0, args...).Store(out)
}

func (c *dbusClient) callJSON(method string, out any, args ...any) error {
	var jsonStr string
	if err := c.call(method, &jsonStr, args...); err != nil {
		return err
	}
	return json.Unmarshal([]byte(jsonStr), out)
}

func (c *dbusClient) GetBatteryStats() ([]dbussvc.StatsEntry, error) {
	var entries []dbussvc.StatsEntry
	err := c.callJSON("GetBatteryStats", &entries)
	return entries, err
}

func (c *dbusClient) GetTotalPowerMah() (float64, error) {
	var v float64
	err := c.call("GetTotalPowerMah", &v)
	return v, err
}

func (c *dbusClient) GetAppStats(uid int32) (mah, ratio float64, err error) {
	if err := c.call("GetAppStatsMah", &mah, uid); err != nil {
		return 0, 0, err
	}
	if err := c.call("GetAppStatsPercent", &ratio, uid); err != nil {
		return 0, 0, err
	}
	return mah, ratio, nil
}

func (c *dbusClient) GetPartStats(category string) (mah, ratio float64, err error) {
	if err := c.call("GetPartStatsMah", &mah, category); err != nil {
		return 0, 0, err
	}
	if err := c.call("GetPartStatsPercent", &ratio, category); err != nil {
		return 0, 0, err
	}
	return mah, ratio, nil
}

func (c *dbusClient) GetTotalTimeSecond(statType string, uid int32) (int64, error) {
	var v int64
	err := c.call("GetTotalTimeSecond", &v, statType, uid)
	return v, err
}

func (c *dbusClient) GetTotalDataCount(statType string, uid int32) (int64, error) {
	var v int64
	err := c.call("GetTotalDataCount", &v, statType, uid)
	return v, err
}

func (c *dbusClient) GetHistory(from, to time.Time) ([]storage.PartSample, error) {
	var samples []storage.PartSample
	err := c.callJSON("GetHistory", &samples, from.Unix(), to.Unix())
	return samples, err
}

func (c *dbusClient) GetPowerStateEvents(from, to time.Time) ([]collector.PowerStateEvent, error) {
	var events []collector.PowerStateEvent
	err := c.callJSON("GetPowerStateEvents", &events, from.Unix(), to.Unix())
	return events, err
}

func (c *dbusClient) Dump() (string, error) {
	var text string
	err := c.call("Dump", &text)
	return text, err
}

func (c *dbusClient) Reset() error {
	return c.obj.Call(dbussvc.IfaceName+".Reset", 0).Err
}
