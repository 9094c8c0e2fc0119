package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/edc-client/pkg/client"
)

// Record payload fields read by the validator.
const (
	FieldFormKey = "formKey"
	FieldFormID  = "formId"
	FieldData    = "data"
)

// typeChecks maps every recognized declared type to its check.
var typeChecks = map[string]func(any) bool{
	"integer": isInteger,
	"int":     isInteger,
	"number":  isNumber,
	"float":   isNumber,
	"decimal": isNumber,
	"boolean": isBoolean,
	"bool":    isBoolean,
	"text":    isText,
	"string":  isText,
	"memo":    isText,
}

// Validator checks record payloads against the schema cache.
type Validator struct {
	cache *Cache
}

// NewValidator creates a Validator backed by c.
func NewValidator(c *Cache) *Validator {
	return &Validator{cache: c}
}

// Cache returns the schema cache the validator reads.
func (v *Validator) Cache() *Cache {
	return v.cache
}

// ValidateRecord checks one record payload. The record names its form by
// formKey or formId and carries its values under data. If the form has no
// cached variables yet the study's schema is refreshed first.
//
// Checks run in this order: undeclared fields, missing required fields,
// value types. Null values pass every type check.
//
// Integer variables reject float64, including whole numbers such as the 5
// encoding/json produces for {"age":5}. Decode record files with
// json.Decoder.UseNumber so integers arrive as json.Number.
func (v *Validator) ValidateRecord(ctx context.Context, studyKey string, record map[string]any) error {
	err := v.validateRecord(ctx, studyKey, record)
	if kind := client.KindOf(err); kind != "" {
		edcSchemaValidationFailures.WithLabelValues(string(kind)).Inc()
	}
	return err
}

func (v *Validator) validateRecord(ctx context.Context, studyKey string, record map[string]any) error {
	formKey, formID, err := formReference(record)
	if err != nil {
		return err
	}

	data, err := recordData(record)
	if err != nil {
		return err
	}

	vars, resolvedKey, ok := v.lookup(studyKey, formKey, formID)
	if !ok || len(vars) == 0 {
		if err := v.cache.Refresh(ctx, studyKey); err != nil {
			return err
		}
		vars, resolvedKey, ok = v.lookup(studyKey, formKey, formID)
	}
	if !ok {
		return client.NewError(client.KindUnknownForm, "form %s is not declared in study %s", describeForm(formKey, formID), studyKey)
	}

	var unknown []string
	for name := range data {
		if _, declared := vars[name]; !declared {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return client.NewError(client.KindValidation, "form %s does not declare %s", resolvedKey, strings.Join(unknown, ", "))
	}

	names := slices.Sorted(maps.Keys(vars))

	var missing []string
	for _, name := range names {
		if _, present := data[name]; vars[name].Required && !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return client.NewError(client.KindValidation, "form %s is missing required %s", resolvedKey, strings.Join(missing, ", "))
	}

	for _, name := range names {
		value, present := data[name]
		if !present || value == nil {
			continue
		}

		declared := vars[name].Type
		check, known := typeChecks[strings.ToLower(declared)]
		if !known {
			return client.NewError(client.KindUnknownVariableType, "variable %s on form %s has unsupported type %q", name, resolvedKey, declared)
		}
		if !check(value) {
			return client.NewError(client.KindValidation, "variable %s on form %s expects %s, got %T", name, resolvedKey, declared, value)
		}
	}

	return nil
}

// lookup resolves the form reference against the current snapshot.
func (v *Validator) lookup(studyKey, formKey string, formID int) (map[string]VariableMeta, string, bool) {
	snap := v.cache.load(studyKey)
	if snap == nil {
		return nil, "", false
	}
	if formKey == "" {
		formKey = snap.formIDs[formID]
		if formKey == "" {
			return nil, "", false
		}
	}
	vars, ok := snap.forms[formKey]
	return vars, formKey, ok
}

// ValidateBatch validates records in order and stops at the first failure,
// reporting its index.
func (v *Validator) ValidateBatch(ctx context.Context, studyKey string, records []map[string]any) error {
	for i, record := range records {
		if err := v.ValidateRecord(ctx, studyKey, record); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// ValidateBatchAsync runs ValidateBatch on its own goroutine.
func (v *Validator) ValidateBatchAsync(ctx context.Context, studyKey string, records []map[string]any) *client.Future[struct{}] {
	return client.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, v.ValidateBatch(ctx, studyKey, records)
	})
}

func formReference(record map[string]any) (string, int, error) {
	if key, ok := record[FieldFormKey].(string); ok && key != "" {
		return key, 0, nil
	}

	raw, ok := record[FieldFormID]
	if !ok || raw == nil {
		return "", 0, client.NewError(client.KindValidation, "record must reference a form by %s or %s", FieldFormKey, FieldFormID)
	}

	switch id := raw.(type) {
	case json.Number:
		n, err := id.Int64()
		if err == nil {
			return "", int(n), nil
		}
	case float64:
		if id == float64(int(id)) {
			return "", int(id), nil
		}
	default:
		if isInteger(id) {
			return "", int(reflect.ValueOf(id).Convert(reflect.TypeOf(int64(0))).Int()), nil
		}
	}
	return "", 0, client.NewError(client.KindValidation, "%s must be an integer, got %v", FieldFormID, raw)
}

func recordData(record map[string]any) (map[string]any, error) {
	raw, ok := record[FieldData]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, client.NewError(client.KindValidation, "%s must be an object, got %T", FieldData, raw)
	}
	return data, nil
}

func describeForm(formKey string, formID int) string {
	if formKey != "" {
		return formKey
	}
	return "id " + strconv.Itoa(formID)
}

func isInteger(v any) bool {
	if n, ok := v.(json.Number); ok {
		_, err := n.Int64()
		return err == nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func isNumber(v any) bool {
	if n, ok := v.(json.Number); ok {
		_, err := n.Float64()
		return err == nil
	}
	if isInteger(v) {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func isBoolean(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isText(v any) bool {
	_, ok := v.(string)
	return ok
}
