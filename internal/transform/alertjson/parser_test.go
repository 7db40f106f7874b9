package alertjson

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"correlationbrain/pkg/models"
)

func TestParseNormalizesAlert(t *testing.T) {
	a, err := Parse([]byte(`{"engine":" Traffic Engine ","severity":"medium","alert_type":"Beaconing","details":{"flow_data":{"SourceIP":"10.0.0.5"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Engine != models.EngineTraffic {
		t.Fatalf("unexpected engine %q", a.Engine)
	}
	if a.Severity != models.SeverityMedium {
		t.Fatalf("unexpected severity %q", a.Severity)
	}
	if a.AlertType != "Beaconing" {
		t.Fatalf("unexpected alert type %q", a.AlertType)
	}
	flow, ok := a.Details.Field("flow_data")
	if !ok {
		t.Fatalf("flow_data missing")
	}
	if ip, _ := flow.Field("SourceIP"); ip.String() != "10.0.0.5" {
		t.Fatalf("unexpected nested ip %q", ip.String())
	}
}

func TestParseRejectsMissingEngine(t *testing.T) {
	_, err := Parse([]byte(`{"severity":"High","details":{}}`))
	if !errors.Is(err, ErrMissingEngine) {
		t.Fatalf("expected ErrMissingEngine, got %v", err)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"engine":`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestParseReplacesNonObjectDetails(t *testing.T) {
	for _, payload := range []string{
		`{"engine":"IDS","details":"10.0.0.1"}`,
		`{"engine":"IDS"}`,
		`{"engine":"IDS","details":[1,2]}`,
	} {
		a, err := Parse([]byte(payload))
		if err != nil {
			t.Fatalf("parse %s: %v", payload, err)
		}
		if a.Details.Kind() != models.KindObject || a.Details.Len() != 0 {
			t.Fatalf("expected empty object details for %s", payload)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := models.Alert{
		Engine:    models.EngineUEBA,
		Severity:  models.SeverityHigh,
		AlertType: "Impossible Travel",
		Details:   models.FromAny(map[string]interface{}{"username": "alice"}),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Engine != in.Engine || out.AlertType != in.AlertType {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if u, _ := out.Details.Field("username"); u.String() != "alice" {
		t.Fatalf("details lost: %s", out.Details.String())
	}
}

func TestParseForwardsLargeIntegersUnchanged(t *testing.T) {
	a, err := Parse([]byte(`{"engine":"UEBA","severity":"High","alertType":"Login","details":{"user_id":1234567890123456789}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := json.Marshal(models.AlertRecord(a))
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if !strings.Contains(string(out), `"user_id":1234567890123456789`) {
		t.Fatalf("forwarded record changed the id: %s", out)
	}
}
