package model

// GeneratorInfo describes a remote generator and its parameter schema.
// Fetched from the API and never mutated locally.
type GeneratorInfo struct {
	Name    string           `json:"name"`
	Params  []ParamInfo      `json:"params"`
	Options GeneratorOptions `json:"options"`
}

// GeneratorOptions carries generator-level capability flags.
type GeneratorOptions struct {
	Preview bool `json:"preview"`
}

// Param returns the schema entry for the named parameter, if declared.
func (g *GeneratorInfo) Param(name string) (ParamInfo, bool) {
	for _, p := range g.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamInfo{}, false
}

// ParamInfo is the declared schema for a single generator parameter.
type ParamInfo struct {
	// Type is one of "str", "int", "float", "bool", "uuid".
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	DefaultValue any           `json:"default_value"`
	Options      *ParamOptions `json:"options,omitempty"`
}

// ParamOptions constrains admissible values for a parameter. Min/Max apply
// to numeric types; Choices is a fixed admissible set.
type ParamOptions struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Choices []any    `json:"choices,omitempty"`
}
