package engine

import (
	"encoding/json"
	"errors"
	"slices"
	"time"
)

var ErrCombatantNotFound = errors.New("combatant not found")
var ErrUnknownCondition = errors.New("unknown condition")

type Condition string

const (
	ConditionPoisoned    Condition = "poisoned"
	ConditionParalyzed   Condition = "paralyzed"
	ConditionUnconscious Condition = "unconscious"
	ConditionFrightened  Condition = "frightened"
	ConditionCharmed     Condition = "charmed"
	ConditionBlinded     Condition = "blinded"
	ConditionDeafened    Condition = "deafened"
	ConditionStunned     Condition = "stunned"
	ConditionPetrified   Condition = "petrified"
	ConditionAsleep      Condition = "asleep"
	ConditionRestrained  Condition = "restrained"
	ConditionOther       Condition = "other"
)

var Conditions = []Condition{
	ConditionPoisoned,
	ConditionParalyzed,
	ConditionUnconscious,
	ConditionFrightened,
	ConditionCharmed,
	ConditionBlinded,
	ConditionDeafened,
	ConditionStunned,
	ConditionPetrified,
	ConditionAsleep,
	ConditionRestrained,
	ConditionOther,
}

func IsCondition(name string) bool {
	return slices.Contains(Conditions, Condition(name))
}

const (
	MinInitiative = -100
	MaxInitiative = 100

	MinGridSize     = 10
	MaxGridSize     = 200
	DefaultGridSize = 50

	MaxNameLength       = 100
	MaxPlayerNameLength = 50
	MaxBackgroundLength = 500
)

// Session is the root aggregate shared by everyone at one table.
type Session struct {
	SessionID    string       `json:"sessionId"`
	Monsters     []Combatant  `json:"monsters"`
	MonsterOrder []string     `json:"monsterOrder"`
	Battlefield  Battlefield  `json:"battlefield"`
	DiceHistory  []RollRecord `json:"diceHistory"`
	LastUpdated  time.Time    `json:"lastUpdated"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Summary is the listing view of a session.
type Summary struct {
	SessionID     string    `json:"sessionId"`
	TotalMonsters int       `json:"totalMonsters"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

type Combatant struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	CurrentHP    int         `json:"currentHp"`
	MaxHP        int         `json:"maxHp"`
	TempHP       int         `json:"tempHp"`
	Conditions   []Condition `json:"conditions"`
	Initiative   int         `json:"initiative"`
	IsAdventurer bool        `json:"isAdventurer"`
}

type Piece struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	CurrentHP int     `json:"currentHp"`
	MaxHP     int     `json:"maxHp"`
}

type Settings struct {
	GridSize int  `json:"gridSize"`
	ShowGrid bool `json:"showGrid"`
}

type Battlefield struct {
	Background string   `json:"background,omitempty"`
	Pieces     []Piece  `json:"pieces"`
	Settings   Settings `json:"settings"`
}

// RollRecord is one entry of a session's dice log. RollData is kept verbatim
// so clients can round-trip whatever extra fields their roller attaches.
type RollRecord struct {
	PlayerName string          `json:"playerName"`
	RollData   json.RawMessage `json:"rollData"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ClampHP bounds hp to [0, max].
func ClampHP(hp, max int) int {
	if hp < 0 {
		return 0
	}
	if hp > max {
		return max
	}
	return hp
}

// AdjustHP applies delta to the combatant's current hit points.
func AdjustHP(c Combatant, delta int) Combatant {
	c.CurrentHP = ClampHP(c.CurrentHP+delta, c.MaxHP)
	return c
}

func SetHP(c Combatant, hp int) Combatant {
	c.CurrentHP = ClampHP(hp, c.MaxHP)
	return c
}

func AddCondition(c Combatant, cond Condition) (Combatant, error) {
	if !IsCondition(string(cond)) {
		return c, ErrUnknownCondition
	}
	if slices.Contains(c.Conditions, cond) {
		return c, nil
	}
	c.Conditions = append(slices.Clone(c.Conditions), cond)
	return c, nil
}

func RemoveCondition(c Combatant, cond Condition) Combatant {
	c.Conditions = slices.DeleteFunc(slices.Clone(c.Conditions), func(have Condition) bool {
		return have == cond
	})
	return c
}

// UniqueConditions drops repeats while keeping first-seen order.
func UniqueConditions(conds []Condition) []Condition {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// ActiveMonsters counts combatants still standing.
func ActiveMonsters(s Session) int {
	n := 0
	for _, m := range s.Monsters {
		if m.CurrentHP > 0 {
			n++
		}
	}
	return n
}

func TotalMonsters(s Session) int {
	return len(s.Monsters)
}
