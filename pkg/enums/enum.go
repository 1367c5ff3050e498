// Package enums holds the string enums stored in the database and exchanged
// over the API. Each type lists its values once; parsing and validation share
// the same list.
package enums

import "fmt"

func parse[T ~string](valid []T, value, kind string) (T, error) {
	for _, candidate := range valid {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
