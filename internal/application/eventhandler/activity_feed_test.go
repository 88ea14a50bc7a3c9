package eventhandler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

type remoteEvent struct {
	shared.BaseEvent
}

func (remoteEvent) Payload() map[string]interface{} { return nil }
func (remoteEvent) Origin() string                  { return "api-1234" }

func TestActivityFeedNewestFirst(t *testing.T) {
	feed := NewActivityFeed(3, nil)
	assert.Empty(t, feed.Recent(0))

	for i := 1; i <= 5; i++ {
		require.NoError(t, feed.Handle(shared.NewInterventionAssignedEvent(fmt.Sprintf("iv-%d", i), "CS1", "Mentoring")))
	}

	got := feed.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "iv-5", got[0].AggregateID)
	assert.Equal(t, "iv-4", got[1].AggregateID)
	assert.Equal(t, "iv-3", got[2].AggregateID)
	assert.Equal(t, shared.EventInterventionAssigned, got[0].Type)

	assert.Len(t, feed.Recent(2), 2)
	assert.Len(t, feed.Recent(10), 3)
}

func TestActivityFeedRecordsOrigin(t *testing.T) {
	feed := NewActivityFeed(0, nil)
	require.NoError(t, feed.Handle(remoteEvent{BaseEvent: shared.BaseEvent{
		Type:        shared.EventRegistryRefreshed,
		Timestamp:   time.Now(),
		AggregateId: "registry",
	}}))
	require.NoError(t, feed.Handle(shared.NewRiskPolicyUpdatedEvent(2, "admin")))

	got := feed.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, shared.EventRiskPolicyUpdated, got[0].Type)
	assert.Empty(t, got[0].Origin)
	assert.Equal(t, "api-1234", got[1].Origin)
}
