package replay

import "correlationbrain/pkg/models"

// APTChainScenario returns the three-step attack used by the demo command:
// a malicious download, C2 beaconing from the same host and a threat
// intelligence hit on the C2 server.
func APTChainScenario(targetIP string) []models.Alert {
	return []models.Alert{
		{
			Engine:    models.EngineArtifact,
			Severity:  models.SeverityCritical,
			AlertType: "Malicious File Detected",
			Details: models.FromAny(map[string]interface{}{
				"verdict":    "MALICIOUS",
				"confidence": 0.97,
				"filename":   "invoice.exe",
				"source_ip":  targetIP,
			}),
		},
		{
			Engine:    models.EngineTraffic,
			Severity:  models.SeverityMedium,
			AlertType: "Anomalous Network Flow",
			Details: models.FromAny(map[string]interface{}{
				"reconstruction_error": 0.0021,
				"verdict":              "ANOMALY",
				"source_ip":            targetIP,
				"flow_data": map[string]interface{}{
					"Protocol":             6.0,
					"FlowDuration":         27169.0,
					"TotalFwdPackets":      4.0,
					"TotalBackwardPackets": 2.0,
					"SourceIP":             targetIP,
				},
			}),
		},
		{
			Engine:    models.EngineThreatIntel,
			Severity:  models.SeverityHigh,
			AlertType: "Connection to C2 Server",
			Details: models.FromAny(map[string]interface{}{
				"source_ip":      targetIP,
				"destination_ip": "45.14.225.242",
				"threat_score":   95,
			}),
		},
	}
}
