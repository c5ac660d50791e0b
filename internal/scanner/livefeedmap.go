package scanner

// Livefeed is the monitoring state of one talkgroup. Minutes is non-zero
// while a temporary avoid is running.
type Livefeed struct {
	Active  bool `json:"active"`
	Minutes int  `json:"minutes,omitempty"`
}

// LivefeedMap is system id → talkgroup id → monitoring state.
type LivefeedMap map[int]map[int]Livefeed

// Lookup returns the entry for the (system, talkgroup) pair.
func (m LivefeedMap) Lookup(system, talkgroup int) (Livefeed, bool) {
	tgs, ok := m[system]
	if !ok {
		return Livefeed{}, false
	}
	lf, ok := tgs[talkgroup]
	return lf, ok
}

// Active reports whether the pair is actively monitored. Absent entries
// are not.
func (m LivefeedMap) Active(system, talkgroup int) bool {
	lf, _ := m.Lookup(system, talkgroup)
	return lf.Active
}

// Set stores the entry, creating the system bucket when needed.
func (m LivefeedMap) Set(system, talkgroup int, lf Livefeed) {
	tgs, ok := m[system]
	if !ok {
		tgs = make(map[int]Livefeed)
		m[system] = tgs
	}
	tgs[talkgroup] = lf
}

// Clone returns a deep copy.
func (m LivefeedMap) Clone() LivefeedMap {
	out := make(LivefeedMap, len(m))
	for sys, tgs := range m {
		cp := make(map[int]Livefeed, len(tgs))
		for tg, lf := range tgs {
			cp[tg] = lf
		}
		out[sys] = cp
	}
	return out
}

// Wire returns the active flags in the shape the server expects for LFM.
func (m LivefeedMap) Wire() map[int]map[int]bool {
	out := make(map[int]map[int]bool, len(m))
	for sys, tgs := range m {
		cp := make(map[int]bool, len(tgs))
		for tg, lf := range tgs {
			cp[tg] = lf.Active
		}
		out[sys] = cp
	}
	return out
}
