package ruleconfig

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"extendaudit/internal/finding"

	"github.com/mitchellh/mapstructure"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://extendaudit.local/ruleconfig.schema.json"

var (
	schemaCacheMu sync.Mutex
	schemaCache   = make(map[string]*jsonschema.Schema)
)

// SettingType names the JSON shape a custom setting accepts.
type SettingType string

const (
	TypeInt        SettingType = "int"
	TypeNumber     SettingType = "number"
	TypeString     SettingType = "string"
	TypeBool       SettingType = "bool"
	TypeStringList SettingType = "string_list"
	TypeNumberList SettingType = "number_list"
)

// Setting declares one custom setting of a rule and its default.
type Setting struct {
	Key         string      `json:"key"`
	Type        SettingType `json:"type"`
	Default     interface{} `json:"default"`
	Min         *int        `json:"min,omitempty"`
	Description string      `json:"description,omitempty"`
}

// MinInt is a helper for declaring Setting.Min.
func MinInt(n int) *int { return &n }

// Spec is what the resolver needs to know about a rule.
type Spec struct {
	RuleID   string
	Settings []Setting
}

// Partial is one layer's override for a rule. Nil fields inherit.
type Partial struct {
	Enabled          *bool                  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	SeverityOverride *finding.Severity      `yaml:"severity_override,omitempty" json:"severity_override,omitempty"`
	CustomSettings   map[string]interface{} `yaml:"custom_settings,omitempty" json:"custom_settings,omitempty"`
}

// Layer maps rule ids to partial overrides.
type Layer map[string]Partial

// Effective is the merged configuration of one rule.
type Effective struct {
	Enabled          bool                   `json:"enabled"`
	SeverityOverride *finding.Severity      `json:"severity_override,omitempty"`
	CustomSettings   map[string]interface{} `json:"custom_settings"`
}

// Severity returns the override if set, else def.
func (e Effective) Severity(def finding.Severity) finding.Severity {
	if e.SeverityOverride != nil {
		return *e.SeverityOverride
	}
	return def
}

// Decode copies the custom settings into a settings struct tagged with
// `mapstructure` keys, converting numeric and list types as needed.
func (e Effective) Decode(out interface{}) error {
	return mapstructure.WeakDecode(e.CustomSettings, out)
}

// Warning is a recoverable configuration problem.
type Warning struct {
	RuleID string `json:"rule_id"`
	Field  string `json:"field,omitempty"`
	Msg    string `json:"message"`
}

func (w Warning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("%s: %s", w.RuleID, w.Msg)
	}
	return fmt.Sprintf("%s.%s: %s", w.RuleID, w.Field, w.Msg)
}

// Defaults returns the effective configuration before any layer applies.
func Defaults(specs []Spec) map[string]Effective {
	out := make(map[string]Effective, len(specs))
	for _, spec := range specs {
		settings := make(map[string]interface{}, len(spec.Settings))
		for _, s := range spec.Settings {
			settings[s.Key] = normalize(s.Default)
		}
		out[spec.RuleID] = Effective{Enabled: true, CustomSettings: settings}
	}
	return out
}

// Resolve folds layers left to right over the rule defaults. Each field is
// merged on its own: a layer that only sets custom_settings.max_lines keeps
// enabled and severity_override from earlier layers, and custom_settings
// merge per key. Invalid values are dropped and out-of-range integers are
// clamped; both are reported as warnings.
func Resolve(specs []Spec, layers ...Layer) (map[string]Effective, []Warning) {
	result := Defaults(specs)
	bySpec := make(map[string]Spec, len(specs))
	for _, spec := range specs {
		bySpec[spec.RuleID] = spec
	}

	var warnings []Warning
	for _, layer := range layers {
		for _, ruleID := range sortedKeys(layer) {
			spec, ok := bySpec[ruleID]
			if !ok {
				warnings = append(warnings, Warning{RuleID: ruleID, Msg: "unknown rule, ignored"})
				continue
			}
			eff := result[ruleID]
			warnings = append(warnings, apply(&eff, spec, layer[ruleID])...)
			result[ruleID] = eff
		}
	}
	return result, warnings
}

func apply(eff *Effective, spec Spec, p Partial) []Warning {
	var warnings []Warning
	warn := func(field, format string, args ...interface{}) {
		warnings = append(warnings, Warning{RuleID: spec.RuleID, Field: field, Msg: fmt.Sprintf(format, args...)})
	}

	// 1. enabled
	if p.Enabled != nil {
		eff.Enabled = *p.Enabled
	}

	// 2. severity_override
	if p.SeverityOverride != nil {
		raw := strings.ToUpper(strings.TrimSpace(string(*p.SeverityOverride)))
		if err := validate("severity", raw); err != nil {
			warn("severity_override", "invalid value %q, ignored", *p.SeverityOverride)
		} else {
			sev := finding.Severity(raw)
			eff.SeverityOverride = &sev
		}
	}

	// 3. custom_settings, per key
	if len(p.CustomSettings) == 0 {
		return warnings
	}
	merged := make(map[string]interface{}, len(eff.CustomSettings))
	for k, v := range eff.CustomSettings {
		merged[k] = v
	}
	declared := make(map[string]Setting, len(spec.Settings))
	for _, s := range spec.Settings {
		declared[s.Key] = s
	}
	for _, key := range sortedKeys(p.CustomSettings) {
		setting, ok := declared[key]
		if !ok {
			warn(key, "unknown setting, ignored")
			continue
		}
		value := normalize(p.CustomSettings[key])
		if err := validate(string(setting.Type), value); err != nil {
			warn(key, "expected %s, ignored", setting.Type)
			continue
		}
		if setting.Type == TypeInt {
			f := math.Round(value.(float64))
			if f > MaxInt {
				warn(key, "value %g is above the maximum %d, clamped", f, MaxInt)
				f = MaxInt
			} else if f < -MaxInt {
				f = -MaxInt
			}
			n := int(f)
			if setting.Min != nil && n < *setting.Min {
				warn(key, "value %d is below the minimum %d, clamped", n, *setting.Min)
				n = *setting.Min
			}
			value = float64(n)
		}
		merged[key] = value
	}
	eff.CustomSettings = merged
	return warnings
}

// MaxInt bounds integer settings so the float64 a document decodes to
// converts to int exactly.
const MaxInt = math.MaxInt32

// normalize turns any decoded YAML or Go value into its encoding/json form,
// which is what the schema validator and mapstructure both expect.
func normalize(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func validate(def string, value interface{}) error {
	schema, err := loadCompiledSchema(def)
	if err != nil {
		return err
	}
	return schema.Validate(value)
}

// ValidateLayer checks a whole layer against the schema.
func ValidateLayer(layer Layer) error {
	return ValidateDocument(layer)
}

// ValidateDocument checks an undecoded layer, such as the generic result of
// a YAML unmarshal, so misspelled fields are caught before decoding drops them.
func ValidateDocument(doc interface{}) error {
	schema, err := loadCompiledSchema("")
	if err != nil {
		return err
	}
	return schema.Validate(normalize(doc))
}

func loadCompiledSchema(def string) (*jsonschema.Schema, error) {
	url := schemaURL
	if def != "" {
		url += "#/$defs/" + def
	}

	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()
	if cached, ok := schemaCache[url]; ok {
		return cached, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load rule config schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule config schema %s: %w", url, err)
	}
	schemaCache[url] = compiled
	return compiled, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
