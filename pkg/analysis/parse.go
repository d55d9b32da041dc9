package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/types"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseResult turns the model's text into an AnalysisResult. The whole
// result is rejected if any part of it fails validation.
func ParseResult(raw string) (*types.AnalysisResult, error) {
	raw = sanitizeModelJSON(raw)
	if raw == "" {
		return nil, apperrors.NewEmptyResponseError("blank reply")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, apperrors.NewMalformedResponseError("reply is not JSON", err)
	}
	clean, err := validate(doc, ResponseSchema(), "$")
	if err != nil {
		return nil, apperrors.NewMalformedResponseError("reply does not match schema", err)
	}

	// Decode only the keys the schema checked
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, apperrors.NewMalformedResponseError("reply does not match schema", err)
	}
	var result types.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apperrors.NewMalformedResponseError("reply does not match schema", err)
	}
	if err := structValidator.Struct(&result); err != nil {
		return nil, apperrors.NewMalformedResponseError(fieldErrors(err), err)
	}
	if result.Recommendations == nil {
		result.Recommendations = []types.ShotRecommendation{}
	}

	return &result, nil
}

func fieldErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %v fails %s=%s", fe.Namespace(), fe.Value(), fe.Tag(), fe.Param()))
	}
	return strings.Join(msgs, "; ")
}

// validate walks a decoded JSON document against a schema and returns a
// copy holding only the object keys the schema declares
func validate(v any, s *types.Schema, path string) (any, error) {
	switch s.Type {
	case types.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected object, got %s", path, jsonKind(v))
		}
		for _, key := range s.Required {
			if _, ok := obj[key]; !ok {
				return nil, fmt.Errorf("%s: missing required field %q", path, key)
			}
		}
		keys := make([]string, 0, len(s.Properties))
		for key := range s.Properties {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(keys))
		for _, key := range keys {
			val, ok := obj[key]
			if !ok {
				continue
			}
			clean, err := validate(val, s.Properties[key], path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = clean
		}
		return out, nil
	case types.TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected array, got %s", path, jsonKind(v))
		}
		if s.Items == nil {
			return arr, nil
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			clean, err := validate(item, s.Items, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	case types.TypeString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %s", path, jsonKind(v))
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			return nil, fmt.Errorf("%s: %q not one of %s", path, str, strings.Join(s.Enum, ", "))
		}
	case types.TypeNumber:
		if _, ok := v.(float64); !ok {
			return nil, fmt.Errorf("%s: expected number, got %s", path, jsonKind(v))
		}
	case types.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return nil, fmt.Errorf("%s: expected boolean, got %s", path, jsonKind(v))
		}
	default:
		return nil, fmt.Errorf("%s: unsupported schema type %q", path, s.Type)
	}
	return v, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// sanitizeModelJSON strips code fences and any prose around the outermost object
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
