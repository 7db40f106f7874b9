package incidentnats

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correlationbrain/pkg/models"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestWriterRoutesRecordsBySubject(t *testing.T) {
	pub := &fakePublisher{}
	w := newWriter(pub, Config{AlertSubjectPrefix: "brain.alerts.", IncidentSubject: "brain.incidents"})

	err := w.WriteRecords([]models.Record{
		models.AlertRecord(models.Alert{Engine: models.EngineTraffic, Details: models.Object(nil)}),
		models.AlertRecord(models.Alert{Details: models.Object(nil)}),
		models.IncidentRecord(&models.Incident{Engine: models.IncidentEngine, Details: models.IncidentDetails{TargetEntity: "USER:bob"}}),
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 3)

	assert.Equal(t, "brain.alerts.traffic_engine", pub.msgs[0].subject)
	assert.Equal(t, "brain.alerts.unknown", pub.msgs[1].subject)
	assert.Equal(t, "brain.incidents", pub.msgs[2].subject)

	var inc map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.msgs[2].data, &inc))
	assert.Equal(t, "USER:bob", inc["details"].(map[string]interface{})["target_entity"])
}

func TestWriterJoinsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	w := newWriter(pub, Config{})

	err := w.WriteRecords([]models.Record{
		models.AlertRecord(models.Alert{Engine: models.EngineIDS}),
		models.IncidentRecord(&models.Incident{}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish alert")
	assert.Contains(t, err.Error(), "publish incident")
	assert.NoError(t, w.Close())
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "threat_intelligence", subjectToken("Threat Intelligence"))
	assert.Equal(t, "a_b_c", subjectToken("a.b*c"))
}
