package livefeed

import (
	"sort"

	"github.com/snarg/freescanner-live/internal/scanner"
)

// categoryMembers returns system id → talkgroup ids for every category of
// the given type. The config's groups/tags indices are used when present;
// otherwise membership comes from each talkgroup's group and tag fields.
func categoryMembers(cfg *scanner.Config, typ scanner.CategoryType) map[string]map[int][]int {
	if cfg == nil {
		return nil
	}
	index := cfg.Groups
	if typ == scanner.CategoryTag {
		index = cfg.Tags
	}
	if len(index) > 0 {
		return index
	}

	out := make(map[string]map[int][]int)
	for _, sys := range cfg.Systems {
		for _, tg := range sys.Talkgroups {
			label := tg.Group
			if typ == scanner.CategoryTag {
				label = tg.Tag
			}
			if label == "" {
				continue
			}
			if out[label] == nil {
				out[label] = make(map[int][]int)
			}
			out[label][sys.ID] = append(out[label][sys.ID], tg.ID)
		}
	}
	return out
}

// buildCategories lists groups then tags, each sorted by label, with their
// status derived from the live feed map.
func buildCategories(cfg *scanner.Config, lf scanner.LivefeedMap) []scanner.Category {
	var out []scanner.Category
	for _, typ := range []scanner.CategoryType{scanner.CategoryGroup, scanner.CategoryTag} {
		members := categoryMembers(cfg, typ)
		labels := make([]string, 0, len(members))
		for label := range members {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			out = append(out, scanner.Category{
				Label:  label,
				Status: categoryStatus(members[label], lf),
				Type:   typ,
			})
		}
	}
	return out
}

func categoryStatus(members map[int][]int, lf scanner.LivefeedMap) scanner.CategoryStatus {
	on, total := 0, 0
	for sys, tgs := range members {
		for _, tg := range tgs {
			total++
			if lf.Active(sys, tg) {
				on++
			}
		}
	}
	switch {
	case total == 0 || on == 0:
		return scanner.CategoryOff
	case on == total:
		return scanner.CategoryOn
	default:
		return scanner.CategoryPartial
	}
}
