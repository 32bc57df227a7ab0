package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// StringList holds the club list. Older documents stored clubs as a single
// string or as an object of club name to bool; both decode into a list.
type StringList []string

// UnmarshalBSONValue accepts string, array, object and null BSON values.
func (s *StringList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*s = nil
		return nil
	case bsontype.Array:
		var values []string
		if err := bson.UnmarshalValue(t, data, &values); err != nil {
			return err
		}
		*s = normalizeClubs(values)
		return nil
	case bsontype.String:
		var value string
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		*s = normalizeClubs([]string{value})
		return nil
	case bsontype.EmbeddedDocument:
		var flags map[string]interface{}
		if err := bson.UnmarshalValue(t, data, &flags); err != nil {
			return err
		}
		names := make([]string, 0, len(flags))
		for name, value := range flags {
			if enabled, ok := value.(bool); ok && !enabled {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		*s = normalizeClubs(names)
		return nil
	default:
		return fmt.Errorf("cannot decode %s into StringList", t)
	}
}

// MarshalBSONValue always stores the list as an array.
func (s StringList) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if s == nil {
		return bson.MarshalValue([]string{})
	}
	return bson.MarshalValue([]string(s))
}

// MarshalJSON encodes a nil list as [].
func (s StringList) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

func normalizeClubs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		name := strings.TrimSpace(v)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
