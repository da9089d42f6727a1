package validate

import (
	"github.com/tidwall/gjson"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

// ParseBattlefield parses {battlefield: {...}}.
func ParseBattlefield(data []byte) (engine.Battlefield, error) {
	doc, err := document(data)
	if err != nil {
		return engine.Battlefield{}, err
	}
	obj, err := objectField(doc, "battlefield", "battlefield")
	if err != nil {
		return engine.Battlefield{}, err
	}
	return battlefield(obj, "battlefield")
}

func battlefield(obj gjson.Result, field string) (engine.Battlefield, error) {
	bg, err := optionalText(obj, "background", path(field, "background"), engine.MaxBackgroundLength)
	if err != nil {
		return engine.Battlefield{}, err
	}

	pieces := []engine.Piece{}
	if present(obj.Get("pieces")) {
		if pieces, err = pieceList(obj, "pieces", path(field, "pieces")); err != nil {
			return engine.Battlefield{}, err
		}
	}

	settings := engine.DefaultSettings()
	if present(obj.Get("settings")) {
		s, err := objectField(obj, "settings", path(field, "settings"))
		if err != nil {
			return engine.Battlefield{}, err
		}
		if settings, err = settingsObject(s, path(field, "settings"), false); err != nil {
			return engine.Battlefield{}, err
		}
	}

	return engine.Battlefield{Background: bg, Pieces: pieces, Settings: settings}, nil
}

// ParseSettings parses {settings: {gridSize, showGrid}}; both are required.
func ParseSettings(data []byte) (engine.Settings, error) {
	doc, err := document(data)
	if err != nil {
		return engine.Settings{}, err
	}
	obj, err := objectField(doc, "settings", "settings")
	if err != nil {
		return engine.Settings{}, err
	}
	return settingsObject(obj, "settings", true)
}

func settingsObject(obj gjson.Result, field string, strict bool) (engine.Settings, error) {
	s := engine.DefaultSettings()
	var err error
	if strict || present(obj.Get("gridSize")) {
		if s.GridSize, err = integer(obj, "gridSize", path(field, "gridSize")); err != nil {
			return engine.Settings{}, err
		}
	}
	if err := within(path(field, "gridSize"), s.GridSize, engine.MinGridSize, engine.MaxGridSize); err != nil {
		return engine.Settings{}, err
	}
	if strict || present(obj.Get("showGrid")) {
		if s.ShowGrid, err = boolean(obj, "showGrid", path(field, "showGrid")); err != nil {
			return engine.Settings{}, err
		}
	}
	return s, nil
}

// ParsePieces parses {pieces: [...]}.
func ParsePieces(data []byte) ([]engine.Piece, error) {
	doc, err := document(data)
	if err != nil {
		return nil, err
	}
	return pieceList(doc, "pieces", "pieces")
}

func pieceList(obj gjson.Result, key, field string) ([]engine.Piece, error) {
	list, err := arrayField(obj, key, field)
	if err != nil {
		return nil, err
	}
	pieces := []engine.Piece{}
	for i, el := range list.Array() {
		p, err := piece(el, index(field, i))
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

func piece(el gjson.Result, field string) (engine.Piece, error) {
	if !el.IsObject() {
		return engine.Piece{}, fail(field, ReasonType, "must be an object")
	}
	id, err := text(el, "id", path(field, "id"), 0)
	if err != nil {
		return engine.Piece{}, err
	}
	name, err := text(el, "name", path(field, "name"), engine.MaxNameLength)
	if err != nil {
		return engine.Piece{}, err
	}
	x, y, err := position(el, field)
	if err != nil {
		return engine.Piece{}, err
	}
	currentHP, err := integer(el, "currentHp", path(field, "currentHp"))
	if err != nil {
		return engine.Piece{}, err
	}
	maxHP, err := integer(el, "maxHp", path(field, "maxHp"))
	if err != nil {
		return engine.Piece{}, err
	}
	if err := atLeast(path(field, "maxHp"), maxHP, 1); err != nil {
		return engine.Piece{}, err
	}
	if err := within(path(field, "currentHp"), currentHP, 0, maxHP); err != nil {
		return engine.Piece{}, err
	}
	return engine.Piece{ID: id, Name: name, X: x, Y: y, CurrentHP: currentHP, MaxHP: maxHP}, nil
}

func position(el gjson.Result, field string) (float64, float64, error) {
	x, err := number(el, "x", path(field, "x"))
	if err != nil {
		return 0, 0, err
	}
	if x < 0 {
		return 0, 0, fail(path(field, "x"), ReasonRange, "must not be negative")
	}
	y, err := number(el, "y", path(field, "y"))
	if err != nil {
		return 0, 0, err
	}
	if y < 0 {
		return 0, 0, fail(path(field, "y"), ReasonRange, "must not be negative")
	}
	return x, y, nil
}
