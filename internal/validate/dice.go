package validate

import (
	"github.com/tidwall/gjson"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

// ParseRoll parses {playerName, rollData}. The returned record has no
// timestamp; the caller stamps it when the roll is committed.
func ParseRoll(data []byte) (engine.RollRecord, error) {
	doc, err := document(data)
	if err != nil {
		return engine.RollRecord{}, err
	}
	name, err := text(doc, "playerName", "playerName", engine.MaxPlayerNameLength)
	if err != nil {
		return engine.RollRecord{}, err
	}
	rollData, err := rollData(doc, "rollData")
	if err != nil {
		return engine.RollRecord{}, err
	}
	return engine.RollRecord{PlayerName: name, RollData: rawCopy(rollData)}, nil
}

func rollData(parent gjson.Result, field string) (gjson.Result, error) {
	obj, err := objectField(parent, "rollData", field)
	if err != nil {
		return obj, err
	}
	dice, err := arrayField(obj, "dice", path(field, "dice"))
	if err != nil {
		return obj, err
	}
	list := dice.Array()
	if len(list) == 0 {
		return obj, fail(path(field, "dice"), ReasonRequired, "must contain at least one die")
	}
	for i, d := range list {
		f := index(path(field, "dice"), i)
		if !d.IsObject() {
			return obj, fail(f, ReasonType, "must be an object")
		}
		if _, err := text(d, "type", path(f, "type"), 0); err != nil {
			return obj, err
		}
		if _, err := integer(d, "value", path(f, "value")); err != nil {
			return obj, err
		}
	}
	return obj, nil
}
