// Package validation applies a template's parameter constraints to submitted
// field values. Validation is fail-fast: the first failing parameter aborts
// the whole check.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/ticket-workflow/internal/template"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Accepted layouts for date parameters, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// CheckParameters validates the submitted value map against the parameters
// applicable to one status. Parameters are checked in declaration order and
// the first failure wins.
func CheckParameters(params []template.Parameter, values map[string]any) error {
	for i := range params {
		if err := checkOne(&params[i], values[params[i].Key]); err != nil {
			return err
		}
	}
	return nil
}

func checkOne(p *template.Parameter, raw any) error {
	label := p.Label("Default")
	value := stringify(raw)

	if value == "" {
		if p.IsRequired() {
			return apperrors.NewInvalidParameterValue(raw, label, "value is required")
		}
		// Absence of an optional field is valid; skip all further checks.
		return nil
	}

	switch p.Type {
	case template.TypeNumber:
		return checkNumber(p, raw, value, label)
	case template.TypeDate:
		return checkDate(raw, value, label)
	case template.TypeBoolean:
		return checkBoolean(raw, value, label)
	case template.TypeEmail:
		if !emailPattern.MatchString(value) {
			return apperrors.NewInvalidParameterValue(raw, label, "value is not a valid email address")
		}
		return nil
	default:
		if allowed := p.AllowedValues(); allowed != nil {
			for _, candidate := range allowed {
				if value == candidate {
					return nil
				}
			}
			return apperrors.NewInvalidParameterValue(raw, label,
				fmt.Sprintf("value must be one of: %s", strings.Join(allowed, ", ")))
		}
		return checkString(p, raw, value, label)
	}
}

func checkNumber(p *template.Parameter, raw any, value, label string) error {
	number, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return apperrors.NewInvalidParameterValue(raw, label, "value is not an integer")
	}
	if min, max, ok := p.RangeBounds(); ok {
		if number < min {
			return apperrors.NewInvalidParameterValue(raw, label,
				fmt.Sprintf("value is below the minimum of %d", min))
		}
		if number > max {
			return apperrors.NewInvalidParameterValue(raw, label,
				fmt.Sprintf("value is above the maximum of %d", max))
		}
	}
	return nil
}

func checkDate(raw any, value, label string) error {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return nil
		}
	}
	return apperrors.NewInvalidParameterValue(raw, label, "value is not a recognized date")
}

func checkBoolean(raw any, value, label string) error {
	if _, isBool := raw.(bool); isBool {
		return nil
	}
	if value == "True" || value == "False" {
		return nil
	}
	return apperrors.NewInvalidParameterValue(raw, label, "value must be True or False")
}

func checkString(p *template.Parameter, raw any, value, label string) error {
	if min, max, ok := p.LengthBounds(); ok {
		length := int64(utf8.RuneCountInString(value))
		if length < min {
			return apperrors.NewInvalidParameterValue(raw, label,
				fmt.Sprintf("value is shorter than the minimum length of %d", min))
		}
		if length > max {
			return apperrors.NewInvalidParameterValue(raw, label,
				fmt.Sprintf("value is longer than the maximum length of %d", max))
		}
	}
	if pattern := p.AllowedPattern(); pattern != "" {
		matcher, err := regexp.Compile(pattern)
		if err != nil {
			return apperrors.NewSchemaError("parameter pattern does not compile",
				map[string]any{"parameter": label, "pattern": pattern})
		}
		if !matcher.MatchString(value) {
			return apperrors.NewInvalidParameterValue(raw, label, "value does not match the allowed pattern")
		}
	}
	return nil
}

// stringify coerces a submitted value to its string representation for
// checking. Encoding failures are tolerated, not fatal.
func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		// JSON numbers decode as float64; keep whole values integer-shaped.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
