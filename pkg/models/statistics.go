package models

// Statistics is a point-in-time view of the correlation engine.
type Statistics struct {
	TotalAlertsProcessed int             `json:"total_alerts_processed"`
	IncidentsGenerated   int             `json:"incidents_generated"`
	EntitiesTracked      int             `json:"entities_tracked"`
	ActiveEntities       []EntitySummary `json:"active_entities"`
}

// EntitySummary describes one entity currently held in memory.
type EntitySummary struct {
	Entity     string   `json:"entity"`
	AlertCount int      `json:"alert_count"`
	Engines    []string `json:"engines"`
}
