package collector

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// SleepMonitor listens for systemd-logind PrepareForSleep/PrepareForShutdown
// signals. The daemon saves the totals when the machine is about to sleep
// and, on wake, consumes the sleep hook log to credit the suspended time.
type SleepMonitor struct {
	conn  *dbus.Conn
	done  chan struct{}
	sleep chan struct{}
	wake  chan struct{}
	log   *slog.Logger
}

// NewSleepMonitor creates a new sleep monitor connected to the system bus.
func NewSleepMonitor(logger *slog.Logger) (*SleepMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := newSleepMonitor(conn, logger)
	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	go m.listen(ch)
	return m, nil
}

func newSleepMonitor(conn *dbus.Conn, logger *slog.Logger) *SleepMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SleepMonitor{
		conn:  conn,
		done:  make(chan struct{}),
		sleep: make(chan struct{}, 1),
		wake:  make(chan struct{}, 1),
		log:   logger,
	}
}

// Sleep receives a value when the system is about to sleep or shut down.
func (m *SleepMonitor) Sleep() <-chan struct{} {
	return m.sleep
}

// Wake returns a channel that receives a value each time the system wakes from sleep.
func (m *SleepMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *SleepMonitor) Close() {
	close(m.done)
}

func (m *SleepMonitor) listen(ch chan *dbus.Signal) {
	if m.conn != nil {
		defer m.conn.RemoveSignal(ch)
	}
	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *SleepMonitor) handle(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	switch sig.Name {
	case "org.freedesktop.login1.Manager.PrepareForShutdown":
		if active {
			m.log.Info("system preparing for shutdown", "topic", "sleep")
			notify(m.sleep)
		}
	case "org.freedesktop.login1.Manager.PrepareForSleep":
		if active {
			m.log.Info("system going to sleep", "topic", "sleep")
			notify(m.sleep)
		} else {
			m.log.Info("system woke up", "topic", "sleep")
			notify(m.wake)
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
