package validate

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

const (
	MinSessionIDLength = 3
	MaxSessionIDLength = 50
)

// SessionID checks the length bounds of a session key.
func SessionID(id string) error {
	n := utf8.RuneCountInString(id)
	if n < MinSessionIDLength || n > MaxSessionIDLength {
		return fail("sessionId", ReasonLength, "must be between %d and %d characters", MinSessionIDLength, MaxSessionIDLength)
	}
	return nil
}

// Roster is the body of a combatant list upsert.
type Roster struct {
	Monsters []engine.Combatant
	// Order is nil when the client sent no monsterOrder.
	Order []string
}

// ParseRoster parses {monsters, monsterOrder}.
func ParseRoster(data []byte) (Roster, error) {
	doc, err := document(data)
	if err != nil {
		return Roster{}, err
	}
	return roster(doc, "")
}

func roster(obj gjson.Result, prefix string) (Roster, error) {
	list, err := arrayField(obj, "monsters", path(prefix, "monsters"))
	if err != nil {
		return Roster{}, err
	}

	monsters := []engine.Combatant{}
	seen := map[string]bool{}
	for i, el := range list.Array() {
		field := index(path(prefix, "monsters"), i)
		c, err := combatant(el, field)
		if err != nil {
			return Roster{}, err
		}
		if seen[c.ID] {
			return Roster{}, fail(path(field, "id"), ReasonDuplicate, "duplicate combatant id %q", c.ID)
		}
		seen[c.ID] = true
		monsters = append(monsters, c)
	}

	out := Roster{Monsters: monsters}
	if !present(obj.Get("monsterOrder")) {
		return out, nil
	}
	order, err := idList(obj, "monsterOrder", path(prefix, "monsterOrder"))
	if err != nil {
		return Roster{}, err
	}
	if err := CheckOrder(path(prefix, "monsterOrder"), order, monsters); err != nil {
		return Roster{}, err
	}
	out.Order = order
	return out, nil
}

// CheckOrder enforces that every id in order names a combatant in monsters
// and appears at most once. Partial orders are allowed.
func CheckOrder(field string, order []string, monsters []engine.Combatant) error {
	ids := engine.CombatantIDs(monsters)
	seen := map[string]bool{}
	for i, id := range order {
		if !ids[id] {
			return fail(index(field, i), ReasonUnknownReference, "unknown combatant id %q", id)
		}
		if seen[id] {
			return fail(index(field, i), ReasonDuplicate, "combatant id %q listed twice", id)
		}
		seen[id] = true
	}
	return nil
}

func idList(obj gjson.Result, key, field string) ([]string, error) {
	list, err := arrayField(obj, key, field)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for i, el := range list.Array() {
		if el.Type != gjson.String || clean(el.Str) == "" {
			return nil, fail(index(field, i), ReasonType, "must be a non-empty string")
		}
		ids = append(ids, clean(el.Str))
	}
	return ids, nil
}

// ParseCombatant parses a single combatant object.
func ParseCombatant(data []byte) (engine.Combatant, error) {
	doc, err := document(data)
	if err != nil {
		return engine.Combatant{}, err
	}
	return combatant(doc, "monster")
}

func combatant(el gjson.Result, field string) (engine.Combatant, error) {
	if !el.IsObject() {
		return engine.Combatant{}, fail(field, ReasonType, "must be an object")
	}
	id, err := text(el, "id", path(field, "id"), 0)
	if err != nil {
		return engine.Combatant{}, err
	}
	name, err := text(el, "name", path(field, "name"), engine.MaxNameLength)
	if err != nil {
		return engine.Combatant{}, err
	}
	currentHP, err := integer(el, "currentHp", path(field, "currentHp"))
	if err != nil {
		return engine.Combatant{}, err
	}
	maxHP, err := integer(el, "maxHp", path(field, "maxHp"))
	if err != nil {
		return engine.Combatant{}, err
	}
	if err := atLeast(path(field, "maxHp"), maxHP, 1); err != nil {
		return engine.Combatant{}, err
	}
	initiative, err := integer(el, "initiative", path(field, "initiative"))
	if err != nil {
		return engine.Combatant{}, err
	}
	if err := within(path(field, "initiative"), initiative, engine.MinInitiative, engine.MaxInitiative); err != nil {
		return engine.Combatant{}, err
	}
	tempHP, err := optionalInteger(el, "tempHp", path(field, "tempHp"), 0)
	if err != nil {
		return engine.Combatant{}, err
	}
	if err := atLeast(path(field, "tempHp"), tempHP, 0); err != nil {
		return engine.Combatant{}, err
	}
	adventurer, err := optionalBoolean(el, "isAdventurer", path(field, "isAdventurer"), false)
	if err != nil {
		return engine.Combatant{}, err
	}
	conds, err := conditions(el, path(field, "conditions"))
	if err != nil {
		return engine.Combatant{}, err
	}

	return engine.Combatant{
		ID:           id,
		Name:         name,
		CurrentHP:    engine.ClampHP(currentHP, maxHP),
		MaxHP:        maxHP,
		TempHP:       tempHP,
		Conditions:   conds,
		Initiative:   initiative,
		IsAdventurer: adventurer,
	}, nil
}

func conditions(el gjson.Result, field string) ([]engine.Condition, error) {
	r := el.Get("conditions")
	if !present(r) {
		return []engine.Condition{}, nil
	}
	if !r.IsArray() {
		return nil, fail(field, ReasonType, "must be an array")
	}
	out := []engine.Condition{}
	for i, c := range r.Array() {
		name := clean(c.Str)
		if c.Type != gjson.String || !engine.IsCondition(name) {
			return nil, fail(index(field, i), ReasonEnum, "unknown condition %q", c.Raw)
		}
		out = append(out, engine.Condition(name))
	}
	return engine.UniqueConditions(out), nil
}

// HPChange is either a relative delta or an absolute value.
type HPChange struct {
	Delta *int
	Set   *int
}

// ParseHPChange parses {delta} or {currentHp}; exactly one must be present.
func ParseHPChange(data []byte) (HPChange, error) {
	doc, err := document(data)
	if err != nil {
		return HPChange{}, err
	}
	hasDelta, hasSet := present(doc.Get("delta")), present(doc.Get("currentHp"))
	switch {
	case hasDelta && hasSet:
		return HPChange{}, fail("delta", ReasonMalformed, "send either delta or currentHp, not both")
	case hasDelta:
		d, err := integer(doc, "delta", "delta")
		if err != nil {
			return HPChange{}, err
		}
		return HPChange{Delta: &d}, nil
	case hasSet:
		v, err := integer(doc, "currentHp", "currentHp")
		if err != nil {
			return HPChange{}, err
		}
		return HPChange{Set: &v}, nil
	default:
		return HPChange{}, fail("delta", ReasonRequired, "delta or currentHp is required")
	}
}

// ParseCondition parses {condition}.
func ParseCondition(data []byte) (engine.Condition, error) {
	doc, err := document(data)
	if err != nil {
		return "", err
	}
	name, err := text(doc, "condition", "condition", 0)
	if err != nil {
		return "", err
	}
	return ConditionName(name)
}

func ConditionName(name string) (engine.Condition, error) {
	name = clean(name)
	if !engine.IsCondition(name) {
		return "", fail("condition", ReasonEnum, "unknown condition %q", name)
	}
	return engine.Condition(name), nil
}

func rawCopy(r gjson.Result) json.RawMessage {
	return json.RawMessage([]byte(r.Raw))
}
