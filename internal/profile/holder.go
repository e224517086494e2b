package profile

import (
	"log/slog"
	"sync/atomic"
)

// Holder publishes the active profile. Readers take a snapshot with Get; a
// reload replaces the whole table at once.
type Holder struct {
	cur    atomic.Pointer[Profile]
	logger *slog.Logger
}

// NewHolder returns a holder serving an empty profile.
func NewHolder(logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{logger: logger}
	h.cur.Store(Empty())
	return h
}

// Init loads the profile at path. On any failure the table is left empty,
// so every lookup reads 0, and false is returned.
func (h *Holder) Init(path string) bool {
	p, err := Load(path)
	if err != nil {
		h.logger.Error("load power profile", "path", path, "err", err, "topic", "profile")
		h.cur.Store(Empty())
		return false
	}
	h.cur.Store(p)
	h.logger.Info("power profile loaded", "path", path, "keys", len(p.entries), "clusters", len(p.clusters), "topic", "profile")
	return true
}

// Reload replaces the profile only when path parses, keeping the previous
// table otherwise.
func (h *Holder) Reload(path string) error {
	p, err := Load(path)
	if err != nil {
		return err
	}
	h.cur.Store(p)
	return nil
}

// Get returns the current snapshot. It is never nil.
func (h *Holder) Get() *Profile {
	return h.cur.Load()
}

// Swap installs p, treating nil as an empty profile.
func (h *Holder) Swap(p *Profile) {
	if p == nil {
		p = Empty()
	}
	h.cur.Store(p)
}
