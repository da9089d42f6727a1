package engine

import "time"

func DefaultSettings() Settings {
	return Settings{GridSize: DefaultGridSize, ShowGrid: true}
}

func NewEmptySession(id string, now time.Time) Session {
	return Session{
		SessionID:    id,
		Monsters:     []Combatant{},
		MonsterOrder: []string{},
		Battlefield: Battlefield{
			Pieces:   []Piece{},
			Settings: DefaultSettings(),
		},
		DiceHistory: []RollRecord{},
		LastUpdated: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FindCombatant returns the index of id in monsters, or -1.
func FindCombatant(monsters []Combatant, id string) int {
	for i, m := range monsters {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func CombatantIDs(monsters []Combatant) map[string]bool {
	ids := make(map[string]bool, len(monsters))
	for _, m := range monsters {
		ids[m.ID] = true
	}
	return ids
}
