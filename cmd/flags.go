package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// enumValue is a string flag restricted to a fixed set of values, rejected
// at parse time.
type enumValue struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnumValue(def string, allowed ...string) *enumValue {
	return &enumValue{value: def, allowed: allowed}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Set(v string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range e.allowed {
		if a == v {
			e.value = v
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
}

func (e *enumValue) Type() string { return "string" }

// addSortFlag registers --sort/-s on fs with the given keys.
func addSortFlag(fs *pflag.FlagSet, def string, keys []string) *enumValue {
	v := newEnumValue(def, keys...)
	fs.VarP(v, "sort", "s", "sort by: "+strings.Join(keys, ", "))
	return v
}
