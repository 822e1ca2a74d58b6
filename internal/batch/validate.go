package batch

import (
	"github.com/toinfinity/infinity-go/internal/model"
)

// ValidateParams checks every job parameter map against the generator's
// declared schema and returns a ValidationError enumerating all violations,
// or nil when every spec is valid. Checks per parameter: declared at all,
// value type, min/max bounds, choice membership.
func ValidateParams(info *model.GeneratorInfo, params []model.JobParams) error {
	var violations []Violation
	for i, jp := range params {
		violations = append(violations, validateOne(info, i, jp)...)
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validateOne(info *model.GeneratorInfo, jobIndex int, jp model.JobParams) []Violation {
	var violations []Violation
	for name, value := range jp {
		pinfo, ok := info.Param(name)
		if !ok {
			violations = append(violations, Violation{
				JobIndex: jobIndex,
				Param:    name,
				Kind:     ViolationUnsupported,
				Value:    value,
			})
			continue
		}
		if !typeMatches(pinfo.Type, value) {
			violations = append(violations, Violation{
				JobIndex:   jobIndex,
				Param:      name,
				Kind:       ViolationType,
				Constraint: pinfo.Type,
				Value:      value,
			})
			continue
		}
		if pinfo.Options == nil {
			continue
		}
		if num, isNum := numericValue(value); isNum {
			if pinfo.Options.Min != nil && num < *pinfo.Options.Min {
				violations = append(violations, Violation{
					JobIndex:   jobIndex,
					Param:      name,
					Kind:       ViolationMin,
					Constraint: *pinfo.Options.Min,
					Value:      value,
				})
			}
			if pinfo.Options.Max != nil && num > *pinfo.Options.Max {
				violations = append(violations, Violation{
					JobIndex:   jobIndex,
					Param:      name,
					Kind:       ViolationMax,
					Constraint: *pinfo.Options.Max,
					Value:      value,
				})
			}
		}
		if len(pinfo.Options.Choices) > 0 && !choiceAllowed(pinfo.Options.Choices, value) {
			violations = append(violations, Violation{
				JobIndex:   jobIndex,
				Param:      name,
				Kind:       ViolationChoices,
				Constraint: pinfo.Options.Choices,
				Value:      value,
			})
		}
	}
	return violations
}

// typeMatches checks a dynamic value against a schema type name. Numeric
// values may arrive as int or float64 depending on whether they were built
// in code or decoded from JSON.
func typeMatches(schemaType string, value any) bool {
	switch schemaType {
	case "str":
		_, ok := value.(string)
		return ok
	case "bool":
		_, ok := value.(bool)
		return ok
	case "int":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		default:
			return false
		}
	case "float":
		_, ok := numericValue(value)
		return ok
	case "uuid":
		if value == nil {
			return true
		}
		_, ok := value.(string)
		return ok
	default:
		// Unknown schema types are not validated locally.
		return true
	}
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// choiceAllowed compares numerically for numeric values so that an int 2
// matches a JSON-decoded choice 2.0.
func choiceAllowed(choices []any, value any) bool {
	vNum, vIsNum := numericValue(value)
	for _, c := range choices {
		if vIsNum {
			if cNum, ok := numericValue(c); ok && cNum == vNum {
				return true
			}
			continue
		}
		if c == value {
			return true
		}
	}
	return false
}
