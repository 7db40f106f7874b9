package models

import (
	"encoding/json"
	"fmt"
)

// Record is one outbound item: either a forwarded alert or an incident.
type Record struct {
	Alert    *Alert
	Incident *Incident
}

// AlertRecord wraps an alert for delivery.
func AlertRecord(a Alert) Record { return Record{Alert: &a} }

// IncidentRecord wraps an incident for delivery.
func IncidentRecord(inc *Incident) Record { return Record{Incident: inc} }

// Kind returns "incident", "alert" or "" for an empty record.
func (r Record) Kind() string {
	switch {
	case r.Incident != nil:
		return "incident"
	case r.Alert != nil:
		return "alert"
	default:
		return ""
	}
}

// MarshalJSON encodes whichever payload the record carries.
func (r Record) MarshalJSON() ([]byte, error) {
	switch {
	case r.Incident != nil:
		return json.Marshal(r.Incident)
	case r.Alert != nil:
		return json.Marshal(r.Alert)
	default:
		return nil, fmt.Errorf("empty record")
	}
}
