package merchant

import (
	"strings"
	"unicode/utf8"

	"fintrack/internal/core"
)

// MergePlan describes one group of duplicate merchant records: the record
// that survives and the ones folded into it. Executing a plan (moving
// transaction references and aliases, deleting duplicates) is left to the
// storage layer.
type MergePlan struct {
	Brand        string
	SurvivorID   string
	DuplicateIDs []string
	// Aliases are the duplicates' names and aliases, to be attached to the
	// survivor.
	Aliases []string
}

// PlanDeduplication groups merchants by the brand extracted from their own
// name and picks one survivor per group of two or more. Records whose brand
// is a generic prefix are never grouped. Plans come out in the order their
// brands are first encountered.
//
// Survivors are chosen by: an assigned category, then an icon, then the
// shortest name, then input order.
func (r *Resolver) PlanDeduplication(merchants []core.MerchantRecord) []MergePlan {
	groups := make(map[string][]core.MerchantRecord)
	var order []string
	for _, m := range merchants {
		brand, ok := r.ExtractBrand(m.Name)
		if !ok || r.IsGeneric(brand) {
			continue
		}
		if _, seen := groups[brand]; !seen {
			order = append(order, brand)
		}
		groups[brand] = append(groups[brand], m)
	}

	var plans []MergePlan
	for _, brand := range order {
		group := groups[brand]
		if len(group) < 2 {
			continue
		}
		survivor := pickSurvivor(group)
		plan := MergePlan{Brand: brand, SurvivorID: group[survivor].ID}
		for i, m := range group {
			if i == survivor {
				continue
			}
			plan.DuplicateIDs = append(plan.DuplicateIDs, m.ID)
			plan.Aliases = append(plan.Aliases, m.Name)
			plan.Aliases = append(plan.Aliases, m.Aliases...)
		}
		plan.Aliases = uniqueAliases(plan.Aliases, group[survivor])
		plans = append(plans, plan)
	}
	return plans
}

func pickSurvivor(group []core.MerchantRecord) int {
	best := 0
	for i := 1; i < len(group); i++ {
		if betterSurvivor(group[i], group[best]) {
			best = i
		}
	}
	return best
}

// betterSurvivor reports whether a strictly beats b; ties keep b, which came
// first.
func betterSurvivor(a, b core.MerchantRecord) bool {
	if a.HasCategory() != b.HasCategory() {
		return a.HasCategory()
	}
	aIcon, bIcon := a.IconURL != "", b.IconURL != ""
	if aIcon != bIcon {
		return aIcon
	}
	return utf8.RuneCountInString(a.Name) < utf8.RuneCountInString(b.Name)
}

func uniqueAliases(aliases []string, survivor core.MerchantRecord) []string {
	seen := map[string]struct{}{strings.ToLower(survivor.Name): {}}
	for _, a := range survivor.Aliases {
		seen[strings.ToLower(a)] = struct{}{}
	}
	var out []string
	for _, a := range aliases {
		key := strings.ToLower(strings.TrimSpace(a))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// ApplyPlans returns the merchant set as it looks after the plans have been
// executed: duplicates removed, their names and aliases moved onto survivors.
// The input slice is not modified.
func ApplyPlans(merchants []core.MerchantRecord, plans []MergePlan) []core.MerchantRecord {
	deleted := make(map[string]struct{})
	extra := make(map[string][]string)
	for _, p := range plans {
		for _, id := range p.DuplicateIDs {
			deleted[id] = struct{}{}
		}
		extra[p.SurvivorID] = append(extra[p.SurvivorID], p.Aliases...)
	}

	out := make([]core.MerchantRecord, 0, len(merchants))
	for _, m := range merchants {
		if _, gone := deleted[m.ID]; gone {
			continue
		}
		if aliases, ok := extra[m.ID]; ok {
			m.Aliases = append(append([]string(nil), m.Aliases...), aliases...)
		}
		out = append(out, m)
	}
	return out
}

// Remaps returns duplicate id -> survivor id for every plan.
func Remaps(plans []MergePlan) map[string]string {
	out := make(map[string]string)
	for _, p := range plans {
		for _, id := range p.DuplicateIDs {
			out[id] = p.SurvivorID
		}
	}
	return out
}
