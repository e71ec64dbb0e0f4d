package relay

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// View is the local materialization of the subscribed, caller-scoped rows.
// The session read loop writes it; command handling reads it, so access is
// guarded even though both sides live in the relay worker's orbit.
type View struct {
	mu      sync.RWMutex
	devices map[uint64]Device
	clip    *CurrentClip
	profile *Profile
}

// NewView returns an empty view.
func NewView() *View {
	return &View{devices: make(map[uint64]Device)}
}

// Reset clears all rows, then applies the snapshot rows.
func (v *View) Reset(rows []rowData) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.devices = make(map[uint64]Device)
	v.clip = nil
	v.profile = nil
	for _, r := range rows {
		v.applyLocked(r.Table, "insert", r.Row)
	}
}

// Apply folds one row event into the view.
func (v *View) Apply(table, op string, row json.RawMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.applyLocked(table, op, row)
}

func (v *View) applyLocked(table, op string, row json.RawMessage) {
	switch table {
	case tableCurrentClip:
		if op == "delete" {
			v.clip = nil
			return
		}
		var clip CurrentClip
		if err := json.Unmarshal(row, &clip); err != nil {
			slog.Warn("undecodable current_clip row", "err", err)
			return
		}
		v.clip = &clip
	case tableDevice:
		var d Device
		if err := json.Unmarshal(row, &d); err != nil {
			slog.Warn("undecodable device row", "err", err)
			return
		}
		if op == "delete" {
			delete(v.devices, d.ID)
			return
		}
		v.devices[d.ID] = d
	case tableUser:
		if op == "delete" {
			v.profile = nil
			return
		}
		var p Profile
		if err := json.Unmarshal(row, &p); err != nil {
			slog.Warn("undecodable user row", "err", err)
			return
		}
		v.profile = &p
	default:
		slog.Debug("row event for unknown table", "table", table)
	}
}

// Devices returns the registered devices ordered by id.
func (v *View) Devices() []Device {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Device, 0, len(v.devices))
	for _, d := range v.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CurrentClip returns a copy of the user's latest clip, or nil if absent.
func (v *View) CurrentClip() *CurrentClip {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.clip == nil {
		return nil
	}
	clip := *v.clip
	return &clip
}

// Profile returns a copy of the user's profile row, or nil when it has not
// arrived yet.
func (v *View) Profile() *Profile {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.profile == nil {
		return nil
	}
	p := *v.profile
	return &p
}

// Username returns the profile username, or nil when the profile row has not
// arrived yet.
func (v *View) Username() *string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.profile == nil {
		return nil
	}
	name := v.profile.Username
	return &name
}
