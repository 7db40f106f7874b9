package alertjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"correlationbrain/internal/logger"
	"correlationbrain/pkg/models"
)

// ErrMissingEngine is returned for payloads without an engine name.
var ErrMissingEngine = errors.New("alert has no engine")

type wireAlert struct {
	Engine         string       `json:"engine"`
	Severity       string       `json:"severity"`
	AlertType      string       `json:"alertType"`
	AlertTypeSnake string       `json:"alert_type"`
	Details        models.Value `json:"details"`
	Tags           []string     `json:"tags"`
}

// Parse converts an engine's JSON alert into a normalized Alert.
func Parse(data []byte) (models.Alert, error) {
	var raw wireAlert
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Alert{}, fmt.Errorf("decode alert: %w", err)
	}

	engine := strings.TrimSpace(raw.Engine)
	if engine == "" {
		return models.Alert{}, ErrMissingEngine
	}

	alertType := strings.TrimSpace(raw.AlertType)
	if alertType == "" {
		alertType = strings.TrimSpace(raw.AlertTypeSnake)
	}

	details := raw.Details
	if details.Kind() != models.KindObject {
		if !details.IsNull() {
			logger.Warnf("Alert from %s has non-object details (%s); ignoring them", engine, details.String())
		}
		details = models.Object(nil)
	}

	return models.Alert{
		Engine:    engine,
		Severity:  models.ParseSeverity(raw.Severity),
		AlertType: alertType,
		Details:   details,
		Tags:      raw.Tags,
	}, nil
}

// Encode renders an alert in the wire format Parse accepts.
func Encode(a models.Alert) ([]byte, error) {
	return json.Marshal(a)
}
