package template

import "fmt"

// Parameter types understood by the validator. Anything else is treated as a
// free-form string, optionally constrained by an allowed-value list.
const (
	TypeNumber  = "number"
	TypeDate    = "date"
	TypeBoolean = "boolean"
	TypeEmail   = "email"
	TypeString  = "string"
)

// Bounds is an optional inclusive min/max constraint.
type Bounds struct {
	Min *int64 `json:"min"`
	Max *int64 `json:"max"`
}

// Parameter describes one input field of a ticket template. Create parameters
// carry no status; update parameters are tagged with the status at which they
// apply.
type Parameter struct {
	Key      string            `json:"key"`
	Labels   map[string]string `json:"label"`
	Type     string            `json:"type"`
	Status   string            `json:"status,omitempty"`
	Required *bool             `json:"required,omitempty"`
	Length   *Bounds           `json:"length,omitempty"`
	Range    *Bounds           `json:"range,omitempty"`
	Pattern  string            `json:"pattern,omitempty"`
	Values   []any             `json:"values,omitempty"`
}

// Label returns the localized display label, falling back to Default and
// finally to the parameter key.
func (p *Parameter) Label(locale string) string {
	if label, ok := p.Labels[locale]; ok && label != "" {
		return label
	}
	if label, ok := p.Labels["Default"]; ok && label != "" {
		return label
	}
	return p.Key
}

// IsRequired defaults to false when the flag is absent.
func (p *Parameter) IsRequired() bool {
	return p.Required != nil && *p.Required
}

// LengthBounds reports the declared length constraint. ok is false when no
// constraint is declared, meaning the check is skipped.
func (p *Parameter) LengthBounds() (min, max int64, ok bool) {
	return bounds(p.Length)
}

// RangeBounds reports the declared numeric range constraint.
func (p *Parameter) RangeBounds() (min, max int64, ok bool) {
	return bounds(p.Range)
}

func bounds(b *Bounds) (int64, int64, bool) {
	if b == nil || (b.Min == nil && b.Max == nil) {
		return 0, 0, false
	}
	min := int64(0)
	max := int64(1<<63 - 1)
	if b.Min != nil {
		min = *b.Min
	}
	if b.Max != nil {
		max = *b.Max
	}
	return min, max, true
}

// AllowedValues returns the enum constraint as strings, or nil when absent.
// Values are string-compared during validation regardless of JSON type.
func (p *Parameter) AllowedValues() []string {
	if len(p.Values) == 0 {
		return nil
	}
	values := make([]string, len(p.Values))
	for i, v := range p.Values {
		values[i] = fmt.Sprint(v)
	}
	return values
}

// AllowedPattern returns the declared regex constraint, empty when absent.
func (p *Parameter) AllowedPattern() string {
	return p.Pattern
}
