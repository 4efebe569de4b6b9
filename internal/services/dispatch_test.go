package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/ports"
)

func TestDispatchAssignAnnouncesAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	addStop(t, store, domain.Stop{ID: "s1", Address: "1 Main St", Phone: "+15550001"}, "")

	broker := events.NewMemoryBroker()
	defer broker.Close()
	agentCh := subscribe(t, broker, events.AgentTopic("a1"))
	sender := &fakeSender{}
	d := &DispatchService{Store: store, Broker: broker, Sender: sender}

	stop, err := d.Assign(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", stop.AgentID)
	assert.Equal(t, domain.StopAssigned, stop.Status)

	evts := drain(agentCh)
	require.Len(t, evts, 1)
	assert.Equal(t, events.StopAssigned, evts[0].Type)
	assert.Equal(t, "s1", evts[0].StopID)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, ports.TemplateOrderAssigned, msgs[0].Template)
	assert.Equal(t, "Ana", msgs[0].Data["agent_name"])

	_, err = d.Assign(ctx, "s1", "ghost")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Len(t, sender.sent(), 1)
}

func TestDispatchSkipsCustomersWithoutPhone(t *testing.T) {
	store := newStore(t)
	addStop(t, store, domain.Stop{ID: "s1", Address: "1 Main St"}, "")
	sender := &fakeSender{}
	d := &DispatchService{Store: store, Sender: sender}

	_, err := d.Assign(context.Background(), "s1", "a1")
	require.NoError(t, err)
	assert.Empty(t, sender.sent())
}

func TestDispatchUnassignAndComplete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	addStop(t, store, domain.Stop{ID: "s1", Address: "1 Main St"}, "a1")
	addStop(t, store, domain.Stop{ID: "s2", Address: "2 Main St"}, "a1")

	broker := events.NewMemoryBroker()
	defer broker.Close()
	agentCh := subscribe(t, broker, events.AgentTopic("a1"))
	d := &DispatchService{Store: store, Broker: broker}

	stop, err := d.Unassign(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StopPending, stop.Status)

	stop, err = d.Complete(ctx, "s2", domain.StopDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.StopDelivered, stop.Status)

	evts := drain(agentCh)
	require.Len(t, evts, 2)
	assert.Equal(t, events.StopStatus, evts[0].Type)
	assert.Equal(t, string(domain.StopPending), evts[0].Status)
	assert.Equal(t, string(domain.StopDelivered), evts[1].Status)

	_, err = d.Complete(ctx, "s1", domain.StopAssigned)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = d.Unassign(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrStopNotFound)
}
