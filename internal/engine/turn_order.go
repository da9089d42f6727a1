package engine

import (
	"cmp"
	"slices"
)

// InitiativeOrder derives a turn order from the roster: highest initiative
// first, adventurers before monsters on a tie, then by name and id.
func InitiativeOrder(monsters []Combatant) []string {
	sorted := slices.Clone(monsters)
	slices.SortStableFunc(sorted, func(a, b Combatant) int {
		if c := cmp.Compare(b.Initiative, a.Initiative); c != 0 {
			return c
		}
		if a.IsAdventurer != b.IsAdventurer {
			if a.IsAdventurer {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	order := make([]string, 0, len(sorted))
	for _, m := range sorted {
		order = append(order, m.ID)
	}
	return order
}
