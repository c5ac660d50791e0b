package livefeed

import (
	"time"

	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/scanner"
)

// Avoid changes which talkgroups the live feed carries.
//
// Target, in order of precedence: All (every talkgroup), Call, the
// System+Talkgroup pair, a whole System, else the current or last call.
// Status is the new active state; nil toggles. Minutes > 0 with an inactive
// result avoids temporarily and re-activates when the time runs out.
func (s *Service) Avoid(opts scanner.AvoidOptions) {
	metrics.ActionsTotal.WithLabelValues("avoid").Inc()

	switch {
	case opts.All != nil:
		for sys, tgs := range s.lfMap {
			for tg := range tgs {
				s.setAvoid(sys, tg, *opts.All, 0)
			}
		}

	case opts.Call != nil:
		s.avoidPair(opts.Call.System, opts.Call.Talkgroup, opts)

	case opts.System != nil && opts.Talkgroup != nil:
		s.avoidPair(*opts.System, *opts.Talkgroup, opts)

	case opts.System != nil:
		tgs := s.lfMap[*opts.System]
		active := false
		if opts.Status != nil {
			active = *opts.Status
		} else {
			active = true
			for _, lf := range tgs {
				if lf.Active {
					active = false
					break
				}
			}
		}
		for tg := range tgs {
			s.setAvoid(*opts.System, tg, active, 0)
		}

	default:
		call := s.reference()
		if call == nil {
			return
		}
		s.avoidPair(call.System, call.Talkgroup, opts)
	}

	s.livefeedMapChanged()
}

func (s *Service) avoidPair(system, talkgroup int, opts scanner.AvoidOptions) {
	cur, _ := s.lfMap.Lookup(system, talkgroup)
	active := !cur.Active
	if opts.Status != nil {
		active = *opts.Status
	}
	minutes := 0
	if !active {
		minutes = opts.Minutes
	}
	s.setAvoid(system, talkgroup, active, minutes)
}

// setAvoid stores the state of one talkgroup, replacing any running
// temporary avoid.
func (s *Service) setAvoid(system, talkgroup int, active bool, minutes int) {
	p := pair{system, talkgroup}
	if t, ok := s.avoidTimers[p]; ok {
		t.Stop()
		delete(s.avoidTimers, p)
	}
	s.lfMap.Set(system, talkgroup, scanner.Livefeed{Active: active, Minutes: minutes})
	if active || minutes <= 0 {
		return
	}
	s.avoidTimers[p] = s.sched.AfterFunc(time.Duration(minutes)*time.Minute, func() {
		delete(s.avoidTimers, p)
		s.lfMap.Set(system, talkgroup, scanner.Livefeed{Active: true})
		s.livefeedMapChanged()
	})
}

// ToggleCategory turns every talkgroup of the category off when it is fully
// on, and on otherwise.
func (s *Service) ToggleCategory(cat scanner.Category) {
	metrics.ActionsTotal.WithLabelValues("toggle-category").Inc()
	members := categoryMembers(s.config, cat.Type)[cat.Label]
	if len(members) == 0 {
		return
	}
	active := categoryStatus(members, s.lfMap) != scanner.CategoryOn
	for sys, tgs := range members {
		for _, tg := range tgs {
			if _, ok := s.lfMap.Lookup(sys, tg); ok {
				s.setAvoid(sys, tg, active, 0)
			}
		}
	}
	s.livefeedMapChanged()
}

func (s *Service) livefeedMapChanged() {
	s.filterQueue()
	s.categories = buildCategories(s.config, s.lfMap)
	if s.mode == scanner.ModeOnline {
		s.sendLivefeedMap()
	}
	s.publish(scanner.Event{
		Categories: scanner.Some(s.categories),
		Map:        scanner.Some(s.lfMap.Clone()),
		Queue:      scanner.Some(len(s.queue)),
	})
}

// IsAvoided reports whether the call's talkgroup is excluded from the live
// feed. Talkgroups missing from the map are excluded.
func (s *Service) IsAvoided(call *scanner.Call) bool {
	if call == nil {
		return false
	}
	lf, ok := s.lfMap.Lookup(call.System, call.Talkgroup)
	return !ok || !lf.Active
}

// IsAvoidedTimer returns the length in minutes of a running temporary avoid
// on the call's talkgroup, or 0.
func (s *Service) IsAvoidedTimer(call *scanner.Call) int {
	if call == nil {
		return 0
	}
	lf, ok := s.lfMap.Lookup(call.System, call.Talkgroup)
	if !ok || lf.Active {
		return 0
	}
	return lf.Minutes
}

// IsPatched reports whether an avoided call still reaches the feed through
// an active patched talkgroup of the same system.
func (s *Service) IsPatched(call *scanner.Call) bool {
	if call == nil || s.lfMap.Active(call.System, call.Talkgroup) {
		return false
	}
	for _, tg := range call.Patches {
		if s.lfMap.Active(call.System, tg) {
			return true
		}
	}
	return false
}
