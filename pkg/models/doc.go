// Package models defines the EDC resource records, the list envelope and the
// validating parser used by every endpoint.
//
// Models are plain structs decoded from the service's camelCase JSON. Parse
// decodes one raw item and enforces the `validate` struct tags through
// go-playground/validator, reporting field names by their JSON name.
package models
