package sensor

import "time"

// Status is a point-in-time snapshot for the status server.
type Status struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	State        State     `json:"state"`
	Started      bool      `json:"started"`
	Synchronized bool      `json:"synchronized"`
	Provisional  bool      `json:"provisional"`
	FrameStart   time.Time `json:"frame_start,omitzero"`
	SlotOwner    int       `json:"slot_owner"`
	CustomQueued int       `json:"custom_queued"`
	RelayQueued  int       `json:"relay_queued"`
	Sent         uint64    `json:"sent"`
	Received     uint64    `json:"received"`
	Dropped      uint64    `json:"dropped"`
	LastError    string    `json:"last_error,omitempty"`
}

func (n *Node) Status() Status {
	st := Status{
		ID:           n.cfg.ID,
		Name:         n.name,
		State:        n.State(),
		Started:      n.started.Load(),
		Synchronized: n.sched.Synchronized(),
		Provisional:  n.sched.Provisional(),
		SlotOwner:    n.sched.Owner(n.cfg.Now()),
		CustomQueued: len(n.custom),
		RelayQueued:  len(n.relay),
		Sent:         n.sent.Load(),
		Received:     n.received.Load(),
		Dropped:      n.dropped.Load(),
	}
	if st.Synchronized {
		st.FrameStart = n.sched.FrameStart()
	}
	if err := n.Err(); err != nil {
		st.LastError = err.Error()
	}
	return st
}
