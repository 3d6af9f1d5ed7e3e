package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Rule validates the payload of events whose name matches Event.
// Paths use gjson syntax ("user.name", "items.#").
type Rule struct {
	// Event is a glob over event names.
	Event string `yaml:"event"`

	// Required lists paths that must be present.
	Required []string `yaml:"required"`

	// Types maps paths to one of string, number, bool, object, array.
	Types map[string]string `yaml:"types"`

	// Defaults maps paths to values set when the path is missing.
	Defaults map[string]any `yaml:"defaults"`

	// Check is an optional custom check run after the declarative ones.
	Check func(name string, data any) error `yaml:"-"`
}

// Validator applies Rules to payloads.
type Validator struct {
	rules []Rule
}

// NewValidator creates a Validator.
func NewValidator(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// Validate checks data against every rule matching name. It returns the
// payload with defaults applied; data is returned unchanged when no default
// was needed.
func (v *Validator) Validate(name string, data any) (any, error) {
	var (
		raw     []byte
		changed bool
	)
	for _, rule := range v.rules {
		if !matchAny([]string{rule.Event}, name) {
			continue
		}

		if raw == nil {
			b, err := json.Marshal(data)
			if err != nil {
				return data, &ValidationError{Event: name, Reason: "payload is not JSON encodable: " + err.Error()}
			}
			raw = b
		}

		for _, path := range sortedKeys(rule.Defaults) {
			if gjson.GetBytes(raw, path).Exists() {
				continue
			}
			b, err := sjson.SetBytes(raw, path, rule.Defaults[path])
			if err != nil {
				return data, &ValidationError{Event: name, Path: path, Reason: err.Error()}
			}
			raw = b
			changed = true
		}

		for _, path := range rule.Required {
			if !gjson.GetBytes(raw, path).Exists() {
				return data, &ValidationError{Event: name, Path: path, Reason: "required"}
			}
		}

		for _, path := range sortedKeys(rule.Types) {
			want := rule.Types[path]
			res := gjson.GetBytes(raw, path)
			if !res.Exists() {
				continue
			}
			if got := jsonKind(res); got != want {
				return data, &ValidationError{Event: name, Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, got)}
			}
		}

		if rule.Check != nil {
			if err := rule.Check(name, data); err != nil {
				return data, &ValidationError{Event: name, Reason: err.Error()}
			}
		}
	}

	if !changed {
		return data, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return data, &ValidationError{Event: name, Reason: err.Error()}
	}
	return out, nil
}

func jsonKind(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "bool"
	case gjson.Null:
		return "null"
	}
	if r.IsArray() {
		return "array"
	}
	if r.IsObject() {
		return "object"
	}
	return "unknown"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validation returns a before stage that rejects payloads failing v and
// replaces mc.EventData with the defaulted payload.
func Validation(v *Validator) Registration {
	return Registration{
		Config: Config{Name: NameValidation, Stage: StageBefore, Priority: PriorityValidation, Enabled: true},
		Handler: func(ctx context.Context, mc *Context, next Next) error {
			data, err := v.Validate(mc.EventName, mc.EventData)
			if err != nil {
				return err
			}
			mc.EventData = data
			return next()
		},
	}
}
