package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/installhub/api/internal/services"
)

const eventTypeShipmentCreated = "project_shipment.created"

// ShipmentEventPublisher announces created project shipments on a Pub/Sub topic.
type ShipmentEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EventPublisher = (*ShipmentEventPublisher)(nil)

// NewShipmentEventPublisher constructs a Pub/Sub backed shipment event publisher.
func NewShipmentEventPublisher(topic *pubsub.Topic) (*ShipmentEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("shipment event publisher: topic is required")
	}
	return &ShipmentEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishShipmentCreated publishes the event and waits for the server-assigned message id.
// Messages are ordered by project id when the topic has ordering enabled.
func (p *ShipmentEventPublisher) PublishShipmentCreated(ctx context.Context, event services.ShipmentCreatedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("shipment event publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal shipment event: %w", err)
	}

	attrs := map[string]string{
		"eventType": eventTypeShipmentCreated,
		"itemCount": strconv.Itoa(event.ItemCount),
	}
	setAttr(attrs, "shipmentId", event.ShipmentID)
	setAttr(attrs, "projectId", event.ProjectID)
	setAttr(attrs, "source", event.Source)
	if event.MilestoneID != nil {
		setAttr(attrs, "milestoneId", *event.MilestoneID)
	}
	if !event.CreatedAt.IsZero() {
		attrs["createdAt"] = event.CreatedAt.UTC().Format(time.RFC3339)
	}

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = strings.TrimSpace(event.ProjectID)
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish shipment event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
