package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zaptalk/zapcampaigns/internal/domain"
	"github.com/zaptalk/zapcampaigns/internal/queue"
)

// memStore is an in-memory implementation of all repository interfaces.
type memStore struct {
	mu        sync.Mutex
	campaigns map[int64]*domain.Campaign
	shippings map[int64]*domain.CampaignShipping
	items     map[int64]*domain.ContactListItem
	contacts  map[string]*domain.Contact
	tags      map[string][]string
	conns     map[int64]*domain.Whatsapp
	tagsErr   error
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: map[int64]*domain.Campaign{},
		shippings: map[int64]*domain.CampaignShipping{},
		items:     map[int64]*domain.ContactListItem{},
		contacts:  map[string]*domain.Contact{},
		tags:      map[string][]string{},
		conns:     map[int64]*domain.Whatsapp{},
		nextID:    1000,
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Get(ctx context.Context, id int64) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) FindDue(ctx context.Context, from, to time.Time) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.Status == domain.CampaignStatusScheduled && !c.ScheduledAt.Before(from) && !c.ScheduledAt.After(to) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *memStore) MarkRunning(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != domain.CampaignStatusScheduled {
		return false, nil
	}
	c.Status = domain.CampaignStatusRunning
	return true, nil
}

func (m *memStore) Finish(ctx context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != domain.CampaignStatusRunning {
		return false, nil
	}
	c.Status = domain.CampaignStatusFinished
	c.CompletedAt = &at
	return true, nil
}

func (m *memStore) GetShipping(ctx context.Context, id int64) (*domain.CampaignShipping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.shippings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) FindByCampaignAndContact(ctx context.Context, campaignID, contactID int64) (*domain.CampaignShipping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.shippings {
		if rec.CampaignId == campaignID && rec.ContactId == contactID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Save(ctx context.Context, rec *domain.CampaignShipping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = m.id()
	}
	cp := *rec
	m.shippings[rec.ID] = &cp
	return nil
}

func (m *memStore) UpdateJobHandle(ctx context.Context, id, handle int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.shippings[id]; ok {
		rec.JobHandle = handle
	}
	return nil
}

func (m *memStore) MarkDelivered(ctx context.Context, id, connectionID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.shippings[id]; ok && rec.DeliveredAt == nil {
		rec.Status = domain.ShippingStatusDelivered
		rec.DeliveredAt = &at
		rec.WhatsappId = connectionID
	}
	return nil
}

func (m *memStore) MarkSuppressed(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.shippings[id]; ok && rec.DeliveredAt == nil {
		rec.Status = domain.ShippingStatusSuppressed
		rec.DeliveredAt = &at
	}
	return nil
}

func (m *memStore) MarkConfirmationRequested(ctx context.Context, id, connectionID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.shippings[id]; ok && rec.ConfirmationRequestedAt == nil {
		rec.ConfirmationRequestedAt = &at
		rec.WhatsappId = connectionID
	}
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.shippings[id]; ok {
		rec.Status = domain.ShippingStatusFailed
		rec.LastError = reason
		rec.LastErrorAt = &at
	}
	return nil
}

func (m *memStore) RecordError(ctx context.Context, id int64, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.shippings[id]; ok {
		rec.Attempts++
		rec.LastError = reason
		rec.LastErrorAt = &at
	}
	return nil
}

func (m *memStore) CountDelivered(ctx context.Context, campaignID int64, requireConfirmation bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.shippings {
		if rec.CampaignId != campaignID || rec.DeliveredAt == nil {
			continue
		}
		if requireConfirmation &&
			rec.Status != domain.ShippingStatusSuppressed &&
			(rec.Confirmation == nil || !*rec.Confirmation) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memStore) DeliveredCountSince(ctx context.Context, connectionID int64, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.shippings {
		if rec.WhatsappId == connectionID && rec.DeliveredAt != nil && !rec.DeliveredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListValidItems(ctx context.Context, listID int64) ([]domain.ContactListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ContactListItem
	for _, it := range m.items {
		if it.ContactListId == listID && it.IsWhatsappValid {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CountValidItems(ctx context.Context, listID int64) (int64, error) {
	items, _ := m.ListValidItems(ctx, listID)
	return int64(len(items)), nil
}

func (m *memStore) GetItem(ctx context.Context, id int64) (*domain.ContactListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memStore) FindByNumber(ctx context.Context, tenantID int64, number string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) TagsByNumber(ctx context.Context, tenantID int64, number string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tagsErr != nil {
		return nil, m.tagsErr
	}
	return m.tags[number], nil
}

func (m *memStore) GetConnection(ctx context.Context, id int64) (*domain.Whatsapp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) ListConnected(ctx context.Context, tenantID int64) ([]domain.Whatsapp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Whatsapp
	for _, w := range m.conns {
		if w.TenantId == tenantID && w.Status == domain.WhatsappStatusConnected {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// shippingRepo/connRepo adapt memStore to the interfaces whose method names
// collide with the campaign repository's.
type shippingRepo struct{ *memStore }

func (r shippingRepo) Get(ctx context.Context, id int64) (*domain.CampaignShipping, error) {
	return r.GetShipping(ctx, id)
}

type connRepo struct{ *memStore }

func (r connRepo) Get(ctx context.Context, id int64) (*domain.Whatsapp, error) {
	return r.GetConnection(ctx, id)
}

// enqueued captures one job handed to the fake queue.
type enqueued struct {
	ID      int64
	Type    string
	Payload interface{}
	Delay   time.Duration
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []enqueued
	cancelled []int64
	nextID    int64
}

func (q *fakeQueue) Enqueue(jobType string, payload interface{}, delay time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.jobs = append(q.jobs, enqueued{ID: q.nextID, Type: jobType, Payload: payload, Delay: delay})
	return q.nextID, nil
}

func (q *fakeQueue) Register(jobType string, concurrency int, h queue.Handler) error {
	return nil
}

func (q *fakeQueue) Cancel(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, id)
	return true
}

func (q *fakeQueue) byType(t string) []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueued
	for _, j := range q.jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}

type sentText struct {
	ConnID int64
	ChatID string
	Text   string
}

type sentMedia struct {
	ConnID  int64
	ChatID  string
	Media   domain.Media
	Caption string
}

type fakeSender struct {
	mu     sync.Mutex
	texts  []sentText
	medias []sentMedia
	err    error
}

func (s *fakeSender) SendText(ctx context.Context, conn *domain.Whatsapp, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.texts = append(s.texts, sentText{ConnID: conn.ID, ChatID: chatID, Text: text})
	return nil
}

func (s *fakeSender) SendMedia(ctx context.Context, conn *domain.Whatsapp, chatID string, media domain.Media, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.medias = append(s.medias, sentMedia{ConnID: conn.ID, ChatID: chatID, Media: media, Caption: caption})
	return nil
}

type publishedEvent struct {
	Action     string
	TenantID   int64
	CampaignID int64
	ShippingID int64
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (e *fakeEvents) PublishCampaign(action string, tenantID, campaignID, shippingID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{action, tenantID, campaignID, shippingID})
}

func (e *fakeEvents) byAction(action string) []publishedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []publishedEvent
	for _, ev := range e.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

// fakeSettings returns defaults unless a key is explicitly set.
type fakeSettings struct {
	strings map[string]string
	ints    map[string]int64
}

func (s *fakeSettings) GetSettingsStringValue(tenantID int64, key string) (string, bool) {
	v, ok := s.strings[key]
	return v, ok
}

func (s *fakeSettings) GetSettingsInt64Value(tenantID int64, key string, def int64) int64 {
	if v, ok := s.ints[key]; ok {
		return v
	}
	return def
}

type testEngine struct {
	svc    *Service
	store  *memStore
	queue  *fakeQueue
	sender *fakeSender
	events *fakeEvents
}

// newTestEngine wires a Service on in-memory fakes with a fixed clock and a
// zero-jitter random source.
func newTestEngine(now time.Time) *testEngine {
	store := newMemStore()
	q := &fakeQueue{}
	snd := &fakeSender{}
	evs := &fakeEvents{}
	svc := NewService(
		store, shippingRepo{store}, store, connRepo{store},
		q, snd, evs, &fakeSettings{},
		ServiceConfig{},
	)
	svc.now = func() time.Time { return now }
	svc.rnd = func(n int) int { return 0 }
	svc.throttle = NewThrottleRegistryWithRand(func(n int) int { return 0 })
	return &testEngine{svc: svc, store: store, queue: q, sender: snd, events: evs}
}
