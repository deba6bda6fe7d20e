package ruleconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Override is one rule row from a resolved pack: the stored jsonb config
// (possibly nil or literal null) plus the row's enabled flag.
type Override struct {
	Key       Key
	Raw       json.RawMessage
	IsEnabled bool
}

type daysPatch struct {
	Days *int `json:"days"`
}

type deliveryPatch struct {
	Method *string `json:"method"`
}

type requiredPatch struct {
	Required *bool `json:"required"`
}

type enabledPatch struct {
	Enabled *bool `json:"enabled"`
}

type recordingPatch struct {
	StaffMustRecordIfParentRecords *bool `json:"staffMustRecordIfParentRecords"`
	MarkAsNotOfficialRecord        *bool `json:"markAsNotOfficialRecord"`
}

type exprPatch struct {
	Expr *string `json:"expr"`
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Merge layers pack overrides onto defaults and returns a fresh Set.
// Rules of the merge:
//   - keys absent from defaults are ignored (defaults define the universe),
//   - a nil or null raw config is "no override": the default is kept,
//   - present fields win field-by-field; absent fields keep default values,
//   - IsEnabled=false marks the effective entry disabled without touching
//     its config values.
//
// Malformed raw JSON is an error; a pack row that cannot be decoded must not
// silently fall back to defaults.
func Merge(defaults Set, overrides []Override) (Set, error) {
	out := defaults.clone()
	for _, ov := range overrides {
		base, known := out[ov.Key]
		if !known {
			continue
		}
		merged := base.clone()
		merged.Disabled = !ov.IsEnabled
		if !isNullRaw(ov.Raw) {
			if err := applyPatch(&merged, ov.Key, ov.Raw); err != nil {
				return nil, err
			}
		}
		out[ov.Key] = merged
	}
	return out, nil
}

func applyPatch(cfg *Config, key Key, raw json.RawMessage) error {
	switch {
	case cfg.Days != nil:
		var p daysPatch
		if err := decodePatch(key, raw, &p); err != nil {
			return err
		}
		if p.Days != nil {
			cfg.Days.Days = *p.Days
		}
	case cfg.Delivery != nil:
		var p deliveryPatch
		if err := decodePatch(key, raw, &p); err != nil {
			return err
		}
		if p.Method != nil {
			cfg.Delivery.Method = *p.Method
		}
	case cfg.Required != nil:
		var p requiredPatch
		if err := decodePatch(key, raw, &p); err != nil {
			return err
		}
		if p.Required != nil {
			cfg.Required.Required = *p.Required
		}
	case cfg.Enabled != nil:
		var p enabledPatch
		if err := decodePatch(key, raw, &p); err != nil {
			return err
		}
		if p.Enabled != nil {
			cfg.Enabled.Enabled = *p.Enabled
		}
	case cfg.Recording != nil:
		var p recordingPatch
		if err := decodePatch(key, raw, &p); err != nil {
			return err
		}
		if p.StaffMustRecordIfParentRecords != nil {
			cfg.Recording.StaffMustRecordIfParentRecords = *p.StaffMustRecordIfParentRecords
		}
		if p.MarkAsNotOfficialRecord != nil {
			cfg.Recording.MarkAsNotOfficialRecord = *p.MarkAsNotOfficialRecord
		}
	case cfg.Expr != nil:
		var p exprPatch
		if err := decodePatch(key, raw, &p); err != nil {
			return err
		}
		if p.Expr != nil {
			cfg.Expr.Expr = *p.Expr
		}
	default:
		return fmt.Errorf("ruleconfig: no shape for key %s", key)
	}
	return nil
}

func decodePatch(key Key, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("ruleconfig: bad config for %s: %w", key, err)
	}
	return nil
}
