package correlation

import "correlationbrain/pkg/models"

// Entity key prefixes. IPs are stored bare.
const (
	PrefixUser = "USER:"
	PrefixHash = "HASH:"
	PrefixFile = "FILE:"
)

// entityField maps one details field (optionally inside a nested object) to an entity key.
type entityField struct {
	nested string
	name   string
	prefix string
}

var ipFields = []string{
	"ip_address",
	"source_ip",
	"destination_ip",
	"SourceIP",
	"DestinationIP",
	"target_ip",
	"attacker_ip",
}

var userFields = []string{"user_id", "username", "email"}

// entityFields is the extraction table, evaluated in order.
var entityFields = buildEntityFields()

func buildEntityFields() []entityField {
	out := make([]entityField, 0, 2*len(ipFields)+2*len(userFields)+2)
	for _, f := range ipFields {
		out = append(out, entityField{name: f})
	}
	for _, f := range ipFields {
		out = append(out, entityField{nested: "flow_data", name: f})
	}
	for _, f := range userFields {
		out = append(out, entityField{name: f, prefix: PrefixUser})
	}
	for _, f := range userFields {
		out = append(out, entityField{nested: "user_profile", name: f, prefix: PrefixUser})
	}
	out = append(out,
		entityField{name: "file_hash", prefix: PrefixHash},
		entityField{name: "filename", prefix: PrefixFile},
	)
	return out
}

// ExtractEntities returns the unique correlation keys of an alert in table order.
// Missing or falsy fields contribute nothing.
func ExtractEntities(alert models.Alert) []string {
	var out []string
	seen := make(map[string]struct{}, 4)
	for _, f := range entityFields {
		src := alert.Details
		if f.nested != "" {
			nested, ok := src.Field(f.nested)
			if !ok {
				continue
			}
			src = nested
		}
		v, ok := src.Field(f.name)
		if !ok || !v.Truthy() {
			continue
		}
		key := f.prefix + v.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
