package rolesync

import (
	"sort"

	"github.com/mcoot/mclink/internal/model"
)

// Changes is the set difference between a player's current and target groups
type Changes struct {
	ToAdd     []string `json:"toAdd"`
	ToRemove  []string `json:"toRemove"`
	Unchanged []string `json:"unchanged"`
}

// Empty reports whether applying the changes would do nothing
func (c Changes) Empty() bool {
	return len(c.ToAdd) == 0 && len(c.ToRemove) == 0
}

// Apply returns current with the changes applied
func (c Changes) Apply(current []string) []string {
	set := toSet(current)
	for _, g := range c.ToRemove {
		delete(set, g)
	}
	for _, g := range c.ToAdd {
		set[g] = struct{}{}
	}
	return sortedKeys(set)
}

// TargetGroups returns the groups granted by the enabled mappings whose role
// the member holds. The result is sorted with duplicates collapsed.
func TargetGroups(roles []string, mappings []model.RoleMapping) []string {
	held := toSet(roles)
	target := make(map[string]struct{})
	for _, m := range mappings {
		if !m.Enabled {
			continue
		}
		if _, ok := held[m.RoleID]; ok {
			target[m.Group] = struct{}{}
		}
	}
	return sortedKeys(target)
}

// Diff computes what to add and remove to turn current into target.
// ToAdd and ToRemove never intersect; Unchanged is current ∩ target.
func Diff(current, target []string) Changes {
	cur := toSet(current)
	tgt := toSet(target)

	var changes Changes
	for g := range tgt {
		if _, ok := cur[g]; ok {
			changes.Unchanged = append(changes.Unchanged, g)
		} else {
			changes.ToAdd = append(changes.ToAdd, g)
		}
	}
	for g := range cur {
		if _, ok := tgt[g]; !ok {
			changes.ToRemove = append(changes.ToRemove, g)
		}
	}
	sort.Strings(changes.ToAdd)
	sort.Strings(changes.ToRemove)
	sort.Strings(changes.Unchanged)
	return changes
}

// Restrict keeps only the groups in managed
func Restrict(groups, managed []string) []string {
	allowed := toSet(managed)
	out := make(map[string]struct{})
	for _, g := range groups {
		if _, ok := allowed[g]; ok {
			out[g] = struct{}{}
		}
	}
	return sortedKeys(out)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
