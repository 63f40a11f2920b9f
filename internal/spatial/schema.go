package spatial

import (
	"strings"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/specerr"
	"github.com/vk/wiregrid/internal/synspec"
)

// Schema is the set of field names a spec may carry in spatial mode.
type Schema struct {
	name    string
	allowed []string
}

// NewSchema builds a schema for the named spec.
func NewSchema(name string, allowed ...string) Schema {
	return Schema{name: name, allowed: allowed}
}

// Allows reports whether key is part of the schema.
func (s Schema) Allows(key string) bool {
	for _, a := range s.allowed {
		if a == key {
			return true
		}
	}
	return false
}

// Check fails with a ValueKind error naming the first key, in the given
// order, that the schema does not allow.
func (s Schema) Check(keys []string) error {
	for _, key := range keys {
		if !s.Allows(key) {
			return specerr.Valuef("spatial", key,
				"'%s' is not allowed in %s when connecting with mask or kernel; allowed keys are %s",
				key, s.name, strings.Join(s.allowed, ", "))
		}
	}
	return nil
}

// ConnSchema lists the conn_spec keys accepted on the spatial path.
var ConnSchema = NewSchema("conn_spec",
	connspec.KeyMask,
	connspec.KeyMultapses,
	connspec.KeyAutapses,
	connspec.KeyRule,
	connspec.KeyIndegree,
	connspec.KeyOutdegree,
	connspec.KeyP,
	connspec.KeyUseOnSource,
)

// SynSchema lists the syn_spec keys accepted on the spatial path.
var SynSchema = NewSchema("syn_spec",
	synspec.KeyWeight,
	synspec.KeyDelay,
)
