// Package events is the realtime notification sink: campaign lifecycle
// updates published on a per-tenant topic so frontend gateways can fan them
// out to operator workspaces.
package events

import (
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
)

// Campaign event actions.
const (
	ActionCampaignUpdate   = "campaign:update"
	ActionCampaignFinished = "campaign:finished"
)

// CampaignEvent is published after delivery progress or completion.
type CampaignEvent struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	TenantId   int64     `json:"tenant_id,string"`
	CampaignId int64     `json:"campaign_id,string"`
	ShippingId int64     `json:"shipping_id,string,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus wraps EventBus with the tenant topic convention.
type Bus struct {
	bus EventBus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: EventBus.New()}
}

func topic(tenantID int64) string {
	return fmt.Sprintf("tenant:%d:campaigns", tenantID)
}

// PublishCampaign emits an event on the tenant's workspace channel.
func (b *Bus) PublishCampaign(action string, tenantID, campaignID, shippingID int64) {
	b.bus.Publish(topic(tenantID), CampaignEvent{
		ID:         uuid.NewString(),
		Action:     action,
		TenantId:   tenantID,
		CampaignId: campaignID,
		ShippingId: shippingID,
		OccurredAt: time.Now(),
	})
}

// SubscribeCampaign registers a handler for a tenant's campaign events.
func (b *Bus) SubscribeCampaign(tenantID int64, fn func(CampaignEvent)) error {
	return b.bus.Subscribe(topic(tenantID), fn)
}

// UnsubscribeCampaign removes a previously registered handler.
func (b *Bus) UnsubscribeCampaign(tenantID int64, fn func(CampaignEvent)) error {
	return b.bus.Unsubscribe(topic(tenantID), fn)
}
