package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zaptalk/zapcampaigns/internal/domain"
)

func fanoutFixture(now time.Time, contacts int) *testEngine {
	e := newTestEngine(now)
	e.store.campaigns[1] = &domain.Campaign{
		ID: 1, TenantId: 1,
		Status:        domain.CampaignStatusRunning,
		ScheduledAt:   now,
		ContactListId: 5,
		Message1:      "hello {name}",
	}
	for i := 0; i < contacts; i++ {
		id := int64(100 + i)
		e.store.items[id] = &domain.ContactListItem{
			ID: id, TenantId: 1, ContactListId: 5,
			Name: "c", Number: "55110000", IsWhatsappValid: true,
		}
	}
	return e
}

func TestFanoutEnqueuesOnePrepareJobPerContact(t *testing.T) {
	now := time.Now()
	e := fanoutFixture(now, 3)

	require.NoError(t, e.svc.ProcessCampaign(context.Background(), 1))

	jobs := e.queue.byType(JobContactPrepare)
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		p := j.Payload.(PreparePayload)
		assert.Equal(t, int64(1), p.CampaignID)
		assert.Equal(t, int64(100+i), p.ItemID)
	}
}

func TestFanoutDelaysStrictlyIncrease(t *testing.T) {
	now := time.Now()
	e := fanoutFixture(now, 5)

	require.NoError(t, e.svc.ProcessCampaign(context.Background(), 1))

	jobs := e.queue.byType(JobContactPrepare)
	require.Len(t, jobs, 5)
	interval := time.Duration(DefaultMessageIntervalSec) * time.Second
	for i := 1; i < len(jobs); i++ {
		assert.GreaterOrEqual(t, jobs[i].Delay-jobs[i-1].Delay, interval,
			"step %d must advance by at least the standard interval", i)
	}
}

func TestFanoutRampScenario(t *testing.T) {
	// 3 contacts, messageInterval=10s, longerIntervalAfter=1, greaterInterval=30s:
	// contacts 0 and 1 step +10s, contact 2 steps +30s.
	now := time.Now()
	e := fanoutFixture(now, 3)
	e.svc.settings = &fakeSettings{ints: map[string]int64{
		SettingMessageInterval:     10,
		SettingLongerIntervalAfter: 1,
		SettingGreaterInterval:     30,
	}}

	require.NoError(t, e.svc.ProcessCampaign(context.Background(), 1))

	jobs := e.queue.byType(JobContactPrepare)
	require.Len(t, jobs, 3)

	// Zero jitter in tests; delay = (base-now) + interval.
	assert.Equal(t, 20*time.Second, jobs[0].Delay)
	assert.Equal(t, 30*time.Second, jobs[1].Delay)
	assert.Equal(t, 80*time.Second, jobs[2].Delay)
	assert.Less(t, jobs[0].Delay, jobs[1].Delay)
	assert.Less(t, jobs[1].Delay, jobs[2].Delay)
}

func TestFanoutJitterBounds(t *testing.T) {
	now := time.Now()
	for _, rnd := range []int{0, 1, 1999} {
		rnd := rnd
		e := fanoutFixture(now, 1)
		e.svc.rnd = func(n int) int { return rnd % n }
		e.svc.settings = &fakeSettings{ints: map[string]int64{SettingMessageInterval: 10}}

		require.NoError(t, e.svc.ProcessCampaign(context.Background(), 1))
		jobs := e.queue.byType(JobContactPrepare)
		require.Len(t, jobs, 1)

		jit := jobs[0].Delay - 20*time.Second
		assert.GreaterOrEqual(t, jit, time.Duration(0))
		assert.Less(t, jit, 2000*time.Millisecond)
	}
}

func TestFanoutSkipsCancelledCampaign(t *testing.T) {
	now := time.Now()
	e := fanoutFixture(now, 2)
	e.store.campaigns[1].Status = domain.CampaignStatusCancelled

	require.NoError(t, e.svc.ProcessCampaign(context.Background(), 1))
	assert.Empty(t, e.queue.byType(JobContactPrepare))
}

func TestFanoutIgnoresInvalidNumbers(t *testing.T) {
	now := time.Now()
	e := fanoutFixture(now, 2)
	e.store.items[200] = &domain.ContactListItem{
		ID: 200, TenantId: 1, ContactListId: 5, Number: "bad", IsWhatsappValid: false,
	}

	require.NoError(t, e.svc.ProcessCampaign(context.Background(), 1))
	assert.Len(t, e.queue.byType(JobContactPrepare), 2)
}
