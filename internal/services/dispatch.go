package services

import (
	"context"
	"time"

	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/ports"
)

// DispatchService wraps store mutations that the map and the customer hear about.
type DispatchService struct {
	Store  *assignment.Store
	Broker events.Broker
	Sender ports.NotificationSender
}

// Assign moves the stop to the end of the agent's route and tells the
// customer who is bringing the order.
func (d *DispatchService) Assign(ctx context.Context, stopID, agentID string) (domain.Stop, error) {
	stop, err := d.Store.Assign(ctx, stopID, agentID)
	if err != nil {
		return domain.Stop{}, err
	}

	publish(ctx, d.Broker, events.Event{
		Type:    events.StopAssigned,
		AgentID: agentID,
		StopID:  stopID,
		Status:  string(stop.Status),
		At:      time.Now().UTC(),
	}, events.TopicMap, events.AgentTopic(agentID))

	data := map[string]string{"stop_id": stop.ID, "agent_id": agentID, "address": stop.Address}
	if agent, err := d.Store.Agent(agentID); err == nil {
		data["agent_name"] = agent.Name
	}
	sendBestEffort(ctx, d.Sender, ports.Message{Phone: stop.Phone, Template: ports.TemplateOrderAssigned, Data: data})
	return stop, nil
}

func (d *DispatchService) Unassign(ctx context.Context, stopID string) (domain.Stop, error) {
	before, err := d.Store.Stop(stopID)
	if err != nil {
		return domain.Stop{}, err
	}
	stop, err := d.Store.Unassign(ctx, stopID)
	if err != nil {
		return domain.Stop{}, err
	}
	d.stopChanged(ctx, before.AgentID, stop)
	return stop, nil
}

// Complete closes the stop as delivered or cancelled.
func (d *DispatchService) Complete(ctx context.Context, stopID string, status domain.StopStatus) (domain.Stop, error) {
	stop, err := d.Store.Complete(ctx, stopID, status)
	if err != nil {
		return domain.Stop{}, err
	}
	d.stopChanged(ctx, stop.AgentID, stop)
	return stop, nil
}

func (d *DispatchService) stopChanged(ctx context.Context, agentID string, stop domain.Stop) {
	topics := []string{events.TopicMap}
	if agentID != "" {
		topics = append(topics, events.AgentTopic(agentID))
	}
	publish(ctx, d.Broker, events.Event{
		Type:    events.StopStatus,
		AgentID: agentID,
		StopID:  stop.ID,
		Status:  string(stop.Status),
		At:      time.Now().UTC(),
	}, topics...)
}
