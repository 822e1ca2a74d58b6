package batch

import (
	"errors"
	"testing"

	"github.com/toinfinity/infinity-go/internal/model"
)

func schemaForValidation() *model.GeneratorInfo {
	min := 0.5
	max := 3.0
	countMin := 1.0
	countMax := 20.0
	return &model.GeneratorInfo{
		Name: "roomscene",
		Params: []model.ParamInfo{
			{Name: "height", Type: "float", DefaultValue: 1.7, Options: &model.ParamOptions{Min: &min, Max: &max}},
			{Name: "count", Type: "int", DefaultValue: 1, Options: &model.ParamOptions{Min: &countMin, Max: &countMax}},
			{Name: "style", Type: "str", DefaultValue: "day", Options: &model.ParamOptions{Choices: []any{"day", "night", "fog"}}},
			{Name: "seed", Type: "int", DefaultValue: 0},
			{Name: "state", Type: "uuid", DefaultValue: nil},
		},
	}
}

func TestValidateParamsAllValid(t *testing.T) {
	info := schemaForValidation()
	params := []model.JobParams{
		{"height": 1.0, "count": 3, "style": "night"},
		{"height": 2.9, "count": 20.0, "style": "day", "seed": 42, "state": nil},
	}
	if err := ValidateParams(info, params); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
}

func TestValidateParamsEnumeratesAllViolations(t *testing.T) {
	info := schemaForValidation()
	params := []model.JobParams{
		{"height": 0.1, "style": "dusk"},    // below min + not a choice
		{"count": "three", "wingspan": 2.0}, // wrong type + unsupported
	}
	err := ValidateParams(info, params)
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(valErr.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(valErr.Violations), valErr)
	}

	byKind := map[ViolationKind]Violation{}
	for _, v := range valErr.Violations {
		byKind[v.Kind] = v
	}
	if v, ok := byKind[ViolationMin]; !ok || v.JobIndex != 0 || v.Param != "height" || v.Constraint != 0.5 {
		t.Errorf("min violation wrong: %+v", v)
	}
	if v, ok := byKind[ViolationChoices]; !ok || v.JobIndex != 0 || v.Param != "style" {
		t.Errorf("choices violation wrong: %+v", v)
	}
	if v, ok := byKind[ViolationType]; !ok || v.JobIndex != 1 || v.Param != "count" {
		t.Errorf("type violation wrong: %+v", v)
	}
	if v, ok := byKind[ViolationUnsupported]; !ok || v.JobIndex != 1 || v.Param != "wingspan" {
		t.Errorf("unsupported violation wrong: %+v", v)
	}
}

func TestValidateParamsIntAcceptsWholeFloats(t *testing.T) {
	info := schemaForValidation()
	if err := ValidateParams(info, []model.JobParams{{"count": 3.0}}); err != nil {
		t.Errorf("whole float should satisfy int type: %v", err)
	}
	err := ValidateParams(info, []model.JobParams{{"count": 3.5}})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("fractional value should violate int type, got %v", err)
	}
	if valErr.Violations[0].Kind != ViolationType {
		t.Errorf("expected type violation, got %+v", valErr.Violations[0])
	}
}

func TestValidateParamsNumericChoiceComparison(t *testing.T) {
	two := 2
	info := &model.GeneratorInfo{
		Name: "g",
		Params: []model.ParamInfo{
			// Choices decoded from JSON arrive as float64.
			{Name: "level", Type: "int", Options: &model.ParamOptions{Choices: []any{1.0, 2.0, 3.0}}},
		},
	}
	if err := ValidateParams(info, []model.JobParams{{"level": two}}); err != nil {
		t.Errorf("int 2 should match JSON choice 2.0: %v", err)
	}
	if err := ValidateParams(info, []model.JobParams{{"level": 5}}); err == nil {
		t.Errorf("5 is not an allowed choice")
	}
}

func TestValidateParamsUnknownSchemaTypeSkipsTypeCheck(t *testing.T) {
	info := &model.GeneratorInfo{
		Name:   "g",
		Params: []model.ParamInfo{{Name: "blob", Type: "geometry"}},
	}
	if err := ValidateParams(info, []model.JobParams{{"blob": "anything"}}); err != nil {
		t.Errorf("unknown schema types are not validated locally: %v", err)
	}
}
