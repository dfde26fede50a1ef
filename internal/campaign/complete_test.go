package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"github.com/zaptalk/zapcampaigns/internal/events"
)

func completionFixture(now time.Time, contacts int) *testEngine {
	e := newTestEngine(now)
	e.store.campaigns[1] = &domain.Campaign{
		ID: 1, TenantId: 1,
		Status:        domain.CampaignStatusRunning,
		ContactListId: 5,
	}
	for i := 0; i < contacts; i++ {
		id := int64(100 + i)
		e.store.items[id] = &domain.ContactListItem{
			ID: id, ContactListId: 5, Number: "55110000", IsWhatsappValid: true,
		}
	}
	return e
}

func deliver(e *testEngine, shippingID, contactID int64, at time.Time, confirmed *bool) {
	e.store.shippings[shippingID] = &domain.CampaignShipping{
		ID: shippingID, CampaignId: 1, ContactId: contactID,
		Status: domain.ShippingStatusDelivered, DeliveredAt: &at, Confirmation: confirmed,
	}
}

func TestCompletionFinishesWhenCountsMatch(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 2)
	deliver(e, 500, 100, now, nil)
	deliver(e, 501, 101, now, nil)

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))

	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusFinished, camp.Status)
	require.NotNil(t, camp.CompletedAt)
	assert.Len(t, e.events.byAction(events.ActionCampaignFinished), 1)
}

func TestCompletionWaitsForAllContacts(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 3)
	deliver(e, 500, 100, now, nil)
	deliver(e, 501, 101, now, nil)

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))

	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusRunning, camp.Status)
	assert.Empty(t, e.events.byAction(events.ActionCampaignFinished))
}

func TestCompletionHonorsConfirmationRequirement(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 2)
	e.store.campaigns[1].Confirmation = true

	yes := true
	deliver(e, 500, 100, now, &yes)
	deliver(e, 501, 101, now, nil)

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusRunning, camp.Status, "unconfirmed delivery does not count")

	e.store.shippings[501].Confirmation = &yes
	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	camp, _ = e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusFinished, camp.Status)
}

func TestCompletionCountsSuppressedRecords(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 1)
	e.store.shippings[500] = &domain.CampaignShipping{
		ID: 500, CampaignId: 1, ContactId: 100,
		Status: domain.ShippingStatusSuppressed, DeliveredAt: &now,
	}

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusFinished, camp.Status)
}

func TestCompletionConfirmationCampaignWithSuppressedContact(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 2)
	e.store.campaigns[1].Confirmation = true

	yes := true
	deliver(e, 500, 100, now, &yes)
	e.store.shippings[501] = &domain.CampaignShipping{
		ID: 501, CampaignId: 1, ContactId: 101,
		Status: domain.ShippingStatusSuppressed, DeliveredAt: &now,
	}

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusFinished, camp.Status,
		"a suppressed contact never confirms and must not hold the campaign open")
}

func TestCompletionFiresExactlyOnceUnderRecheck(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 1)
	deliver(e, 500, 100, now, nil)

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))

	assert.Len(t, e.events.byAction(events.ActionCampaignFinished), 1)
}

func TestCompletionIgnoresNonRunningCampaign(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 1)
	e.store.campaigns[1].Status = domain.CampaignStatusCancelled
	deliver(e, 500, 100, now, nil)

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusCancelled, camp.Status)
}

func TestCompletionEmptyListNeverFinishes(t *testing.T) {
	now := time.Now()
	e := completionFixture(now, 0)

	require.NoError(t, e.svc.CheckCampaignCompletion(context.Background(), 1))
	camp, _ := e.store.Get(context.Background(), 1)
	assert.Equal(t, domain.CampaignStatusRunning, camp.Status)
}
