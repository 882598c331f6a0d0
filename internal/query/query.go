// Package query runs jq expressions over the records currently
// accumulated in a view, powering the dashboard's "extract a field
// from the visible rows" affordance.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Result contains the values extracted from the accumulated records.
type Result struct {
	Values   []any    `json:"values"`
	Errors   []string `json:"errors,omitempty"`
	RawCount int      `json:"raw_count"`
}

// Extract compiles expression once and applies it to every record.
// Records are converted through JSON so the expression sees plain
// maps. Per-record evaluation errors are collected, not fatal;
// maxResults <= 0 means unbounded. Duplicate values are collapsed.
func Extract[T any](records []T, expression string, maxResults int) (*Result, error) {
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("compiling jq expression: %w", err)
	}

	result := &Result{Values: make([]any, 0)}
	seen := make(map[string]bool)

	for _, record := range records {
		input, err := toJSONValue(record)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		iter := code.Run(input)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if evalErr, isErr := v.(error); isErr {
				result.Errors = append(result.Errors, evalErr.Error())
				continue
			}
			if v == nil {
				continue
			}
			result.RawCount++

			key := valueKey(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Values = append(result.Values, v)
			if maxResults > 0 && len(result.Values) >= maxResults {
				return result, nil
			}
		}
	}
	return result, nil
}

// toJSONValue round-trips a record through JSON into plain any values.
func toJSONValue(record any) (any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return value, nil
}

// valueKey renders a value into a stable deduplication key.
func valueKey(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
