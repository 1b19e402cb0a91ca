package webhook

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Conditions are expr-lang boolean expressions evaluated against
//
//	event_type  string
//	data        map[string]any   (the event payload)
//
// e.g. `data.call_status == "completed" && data.duration_sec > 30`.

func conditionEnv(eventType string, data map[string]interface{}) map[string]interface{} {
	if data == nil {
		data = map[string]interface{}{}
	}
	return map[string]interface{}{
		"event_type": eventType,
		"data":       data,
	}
}

func compileCondition(condition string) (*vm.Program, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return nil, nil
	}
	program, err := expr.Compile(condition, expr.Env(conditionEnv("", nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", condition, err)
	}
	return program, nil
}

func evalCondition(program *vm.Program, eventType string, data map[string]interface{}) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, conditionEnv(eventType, data))
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
