package validate

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

const maxMagnitude = 1 << 30

func path(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func index(prefix string, i int) string {
	return fmt.Sprintf("%s[%d]", prefix, i)
}

// document parses the top level of data as a JSON object.
func document(data []byte) (gjson.Result, error) {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return gjson.Result{}, fail("", ReasonMalformed, "body must be valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return gjson.Result{}, fail("", ReasonType, "body must be a JSON object")
	}
	return doc, nil
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

func objectField(parent gjson.Result, key, field string) (gjson.Result, error) {
	r := parent.Get(key)
	if !present(r) {
		return r, fail(field, ReasonRequired, "is required")
	}
	if !r.IsObject() {
		return r, fail(field, ReasonType, "must be an object")
	}
	return r, nil
}

func arrayField(parent gjson.Result, key, field string) (gjson.Result, error) {
	r := parent.Get(key)
	if !present(r) {
		return r, fail(field, ReasonRequired, "is required")
	}
	if !r.IsArray() {
		return r, fail(field, ReasonType, "must be an array")
	}
	return r, nil
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// text reads a required non-blank string and normalises it.
func text(parent gjson.Result, key, field string, maxLen int) (string, error) {
	r := parent.Get(key)
	if !present(r) {
		return "", fail(field, ReasonRequired, "is required")
	}
	if r.Type != gjson.String {
		return "", fail(field, ReasonType, "must be a string")
	}
	s := clean(r.Str)
	if s == "" {
		return "", fail(field, ReasonRequired, "must not be empty")
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", fail(field, ReasonLength, "must be at most %d characters", maxLen)
	}
	return s, nil
}

func optionalText(parent gjson.Result, key, field string, maxLen int) (string, error) {
	if !present(parent.Get(key)) {
		return "", nil
	}
	r := parent.Get(key)
	if r.Type != gjson.String {
		return "", fail(field, ReasonType, "must be a string")
	}
	s := strings.TrimSpace(r.Str)
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", fail(field, ReasonLength, "must be at most %d characters", maxLen)
	}
	return s, nil
}

func number(parent gjson.Result, key, field string) (float64, error) {
	r := parent.Get(key)
	if !present(r) {
		return 0, fail(field, ReasonRequired, "is required")
	}
	if r.Type != gjson.Number {
		return 0, fail(field, ReasonType, "must be a number")
	}
	if math.IsNaN(r.Num) || math.Abs(r.Num) > maxMagnitude {
		return 0, fail(field, ReasonRange, "is out of range")
	}
	return r.Num, nil
}

func integer(parent gjson.Result, key, field string) (int, error) {
	f, err := number(parent, key, field)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fail(field, ReasonType, "must be an integer")
	}
	return int(f), nil
}

func optionalInteger(parent gjson.Result, key, field string, def int) (int, error) {
	if !present(parent.Get(key)) {
		return def, nil
	}
	return integer(parent, key, field)
}

func boolean(parent gjson.Result, key, field string) (bool, error) {
	r := parent.Get(key)
	if !present(r) {
		return false, fail(field, ReasonRequired, "is required")
	}
	if r.Type != gjson.True && r.Type != gjson.False {
		return false, fail(field, ReasonType, "must be a boolean")
	}
	return r.Bool(), nil
}

func optionalBoolean(parent gjson.Result, key, field string, def bool) (bool, error) {
	if !present(parent.Get(key)) {
		return def, nil
	}
	return boolean(parent, key, field)
}

func within(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fail(field, ReasonRange, "must be between %d and %d", lo, hi)
	}
	return nil
}

func atLeast(field string, v, lo int) error {
	if v < lo {
		return fail(field, ReasonRange, "must be at least %d", lo)
	}
	return nil
}
