package models

import "encoding/json"

// EncodeAllowedValues serializes enum choices for storage. An empty list is
// stored as NULL.
func EncodeAllowedValues(values []string) *string {
	if len(values) == 0 {
		return nil
	}
	return EncodeJSON(values)
}

// DecodeAllowedValues parses stored enum choices. Malformed or non string-array
// content yields nil; stored data must never fail a read.
func DecodeAllowedValues(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var items []*string
	if err := json.Unmarshal([]byte(*raw), &items); err != nil || items == nil {
		return nil
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			return nil
		}
		values = append(values, *item)
	}
	return values
}

// EncodeJSON serializes v into a text column value. Returns nil if v cannot be
// marshaled.
func EncodeJSON(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EqualStringPtr reports whether two optional strings hold the same value.
func EqualStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
