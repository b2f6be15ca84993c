package retailer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

var (
	// ErrUnknownSection is returned for a section name outside Sections().
	ErrUnknownSection = errors.New("retailer: unknown section")
	// ErrUnknownField is returned when a partial update names a field the
	// document does not have.
	ErrUnknownField = errors.New("retailer: unknown field")
	// ErrInvalidValue is returned when a field value cannot be represented
	// exactly, such as a fractional number for an integer field.
	ErrInvalidValue = errors.New("retailer: invalid value")
	// ErrPersist wraps a store failure after the update was applied in memory.
	ErrPersist = errors.New("persist retailer config")
)

// Partial is a possibly incomplete configuration document keyed by JSON field
// name. A nil value for an optional field clears it.
type Partial map[string]any

// Resolve overlays partial onto Defaults(), persisted fields winning. Nested
// making-charge objects are overlaid field by field.
func Resolve(partial Partial) (Config, error) {
	cfg := Defaults()
	if len(partial) == 0 {
		return cfg, nil
	}

	normalized, err := Normalize(partial)
	if err != nil {
		return cfg, err
	}
	if err := checkIntegral(normalized); err != nil {
		return cfg, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return Defaults(), fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(normalized)); err != nil {
		return Defaults(), fmt.Errorf("decode retailer config: %w", err)
	}

	if v, ok := normalized["logoBase64"]; ok && v == nil {
		cfg.LogoBase64 = nil
	}
	if v, ok := normalized["frozenAt"]; ok && v == nil {
		cfg.FrozenAt = nil
	}
	return cfg, nil
}

// Normalize round-trips a partial through JSON so that stores and the decoder
// only ever see JSON-native values (float64, string, bool, nested maps).
func Normalize(partial Partial) (Partial, error) {
	if partial == nil {
		return Partial{}, nil
	}
	raw, err := json.Marshal(partial)
	if err != nil {
		return nil, fmt.Errorf("encode partial config: %w", err)
	}
	out := Partial{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode partial config: %w", err)
	}
	return out, nil
}

// CheckFields rejects keys the document does not define.
func CheckFields(partial Partial) error {
	known := make(map[string]struct{})
	for _, name := range FieldNames("") {
		known[name] = struct{}{}
	}
	for key := range partial {
		if _, ok := known[key]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, key)
		}
	}
	return nil
}

// SectionDefaults returns a partial restoring every field of section to its
// default. Optional fields without a default are present as explicit nils.
func SectionDefaults(section Section) (Partial, error) {
	if _, err := ParseSection(string(section)); err != nil {
		return nil, err
	}
	all, err := ToPartial(Defaults())
	if err != nil {
		return nil, err
	}
	out := Partial{}
	for _, name := range FieldNames(section) {
		out[name] = all[name]
	}
	return out, nil
}

// ToPartial converts a full config into its document form.
func ToPartial(cfg Config) (Partial, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode retailer config: %w", err)
	}
	out := Partial{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode retailer config: %w", err)
	}
	return out, nil
}

// checkIntegral rejects fractional numbers for integer fields, which the weakly
// typed decoder would otherwise truncate.
func checkIntegral(doc Partial) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() != reflect.Int {
			continue
		}
		name := jsonName(field)
		if v, ok := doc[name].(float64); ok && v != math.Trunc(v) {
			return fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidValue, name, v)
		}
	}
	return nil
}

// merge overlays src onto dst key by key. Nested objects are merged field by
// field, so a patch naming one making-charge field keeps its siblings.
func merge(dst, src Partial) Partial {
	out := make(Partial, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		sub, isObject := v.(map[string]any)
		prev, hadObject := out[k].(map[string]any)
		if isObject && hadObject {
			out[k] = map[string]any(merge(prev, sub))
			continue
		}
		out[k] = v
	}
	return out
}
