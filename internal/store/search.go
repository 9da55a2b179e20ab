package store

import (
	"context"
	"reflect"
	"strings"
)

// Search loads all owned records and filters them client-side by
// case-insensitive substring match over the named string fields (json
// tag names). There is no server-side full-text search behind this; for
// the data volumes of a per-owner catalog that trade-off is acceptable.
func (s *Store[T, PT]) Search(ctx context.Context, owner, term string, fields ...string) ([]T, error) {
	recs, err := s.List(ctx, owner, ListOptions{})
	if err != nil {
		return nil, err
	}
	if term == "" || len(fields) == 0 {
		return recs, nil
	}

	want := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		want[f] = struct{}{}
	}
	needle := strings.ToLower(term)

	matched := recs[:0]
	for i := range recs {
		if matchFields(reflect.ValueOf(&recs[i]).Elem(), want, needle) {
			matched = append(matched, recs[i])
		}
	}
	return matched, nil
}

// matchFields walks the struct (including embedded structs) and reports
// whether any selected string field contains the needle.
func matchFields(v reflect.Value, want map[string]struct{}, needle string) bool {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)

		if f.Anonymous && fv.Kind() == reflect.Struct {
			if matchFields(fv, want, needle) {
				return true
			}
			continue
		}
		if fv.Kind() != reflect.String {
			continue
		}

		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		name := tag
		if name == "" || name == "-" {
			name = f.Name
		}
		if _, ok := want[name]; !ok {
			continue
		}
		if strings.Contains(strings.ToLower(fv.String()), needle) {
			return true
		}
	}
	return false
}
