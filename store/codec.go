package store

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return nil
}

// change is the effect of one Op on the current state of a document.
type change struct {
	data []byte
	del  bool
	skip bool
}

func apply(op Op, current []byte, exists bool) (change, error) {
	switch op.Kind {
	case OpSet:
		if !isObject(op.Data) {
			return change{}, fmt.Errorf("%w: %s is not a JSON object", ErrMalformed, op.key())
		}
		return change{data: op.Data}, nil
	case OpDelete:
		if !exists {
			return change{skip: true}, nil
		}
		return change{del: true}, nil
	case OpArrayUnion:
		if !exists {
			current = []byte("{}")
		}
		next, err := rewriteArray(current, op.Field, func(items []string) []string {
			return union(items, op.Values)
		})
		if err != nil {
			return change{}, fmt.Errorf("%s: %w", op.key(), err)
		}
		return change{data: next}, nil
	case OpArrayRemove:
		if !exists {
			return change{skip: true}, nil
		}
		next, err := rewriteArray(current, op.Field, func(items []string) []string {
			return without(items, op.Values)
		})
		if err != nil {
			return change{}, fmt.Errorf("%s: %w", op.key(), err)
		}
		return change{data: next}, nil
	}
	return change{}, fmt.Errorf("unknown op kind %d", op.Kind)
}

func isObject(data []byte) bool {
	return gjson.ValidBytes(data) && gjson.ParseBytes(data).IsObject()
}

// rewriteArray replaces the string array stored under field with fn(old).
// A missing or null field reads as an empty array.
func rewriteArray(doc []byte, field string, fn func([]string) []string) ([]byte, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	if !isObject(doc) {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var items []string
	if v := gjson.GetBytes(doc, field); v.Exists() && v.Type != gjson.Null {
		if !v.IsArray() {
			return nil, fmt.Errorf("%w: field %q is not an array", ErrMalformed, field)
		}
		for _, e := range v.Array() {
			if e.Type != gjson.String {
				return nil, fmt.Errorf("%w: field %q holds non-string element %s", ErrMalformed, field, e.Raw)
			}
			items = append(items, e.Str)
		}
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw, err := json.Marshal(fn(items))
	if err != nil {
		return nil, err
	}
	fields[field] = raw
	return json.Marshal(fields)
}

// union appends values not already present. Duplicates already stored are
// collapsed as well, so a legacy list heals on the next write.
func union(items, values []string) []string {
	seen := make(map[string]bool, len(items)+len(values))
	out := make([]string, 0, len(items)+len(values))
	for _, list := range [][]string{items, values} {
		for _, v := range list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func without(items, values []string) []string {
	drop := make(map[string]bool, len(values))
	for _, v := range values {
		drop[v] = true
	}
	out := make([]string, 0, len(items))
	for _, v := range items {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

// matches reports whether every filter equals the document's string field.
func matches(doc []byte, where []Where) bool {
	for _, w := range where {
		v := gjson.GetBytes(doc, w.Field)
		if v.Type != gjson.String || v.Str != w.Value {
			return false
		}
	}
	return true
}

func checkWhere(where []Where) error {
	for _, w := range where {
		if err := checkField(w.Field); err != nil {
			return err
		}
	}
	return nil
}
