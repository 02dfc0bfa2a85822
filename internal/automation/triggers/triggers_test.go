package triggers

import (
	"context"
	"sync"
	"time"

	"leadpilot_backend/internal/automation/debounce"
	campaigns "leadpilot_backend/internal/campaigns/repository"
	"leadpilot_backend/internal/events"
	"leadpilot_backend/internal/leads/domain"
	leads "leadpilot_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// Shared fakes for the trigger tests.

type memVersionStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMemVersionStore() *memVersionStore {
	return &memVersionStore{counters: make(map[string]int64)}
}

func (m *memVersionStore) Increment(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memVersionStore) Get(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.counters[key]
	return v, ok, nil
}

func (m *memVersionStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, key)
	return nil
}

type enqueuedTrigger struct {
	leadID  uuid.UUID
	kind    debounce.Kind
	version int64
	delay   time.Duration
}

type captureEnqueuer struct {
	triggers []enqueuedTrigger
}

func (c *captureEnqueuer) EnqueueTrigger(_ context.Context, leadID uuid.UUID, kind debounce.Kind, version int64, delay time.Duration) error {
	c.triggers = append(c.triggers, enqueuedTrigger{leadID: leadID, kind: kind, version: version, delay: delay})
	return nil
}

func (c *captureEnqueuer) last() enqueuedTrigger {
	return c.triggers[len(c.triggers)-1]
}

type fakeTriggerStore struct {
	mu       sync.Mutex
	leads    map[uuid.UUID]*leads.Lead
	statuses map[uuid.UUID][]domain.AutomationStatus
	inbound  map[uuid.UUID][]leads.Message
	outbound map[uuid.UUID][]leads.Message
}

func newFakeTriggerStore(seed ...*leads.Lead) *fakeTriggerStore {
	store := &fakeTriggerStore{
		leads:    make(map[uuid.UUID]*leads.Lead),
		statuses: make(map[uuid.UUID][]domain.AutomationStatus),
		inbound:  make(map[uuid.UUID][]leads.Message),
		outbound: make(map[uuid.UUID][]leads.Message),
	}
	for _, lead := range seed {
		store.leads[lead.ID] = lead
	}
	return store
}

func (f *fakeTriggerStore) GetByID(_ context.Context, id uuid.UUID) (leads.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return leads.Lead{}, leads.ErrNotFound
	}
	return *lead, nil
}

func (f *fakeTriggerStore) GetByPhone(_ context.Context, _ string) (leads.Lead, error) {
	return leads.Lead{}, leads.ErrNotFound
}

func (f *fakeTriggerStore) UpdateAutomationStatus(_ context.Context, id uuid.UUID, status domain.AutomationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return leads.ErrNotFound
	}
	lead.AutomationStatus = status
	f.statuses[id] = append(f.statuses[id], status)
	return nil
}

func (f *fakeTriggerStore) MarkIntentionPending(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return leads.ErrNotFound
	}
	if lead.IntentionStatus == domain.IntentionFinalized || lead.IntentionStatus == domain.IntentionSentToClient {
		return nil
	}
	lead.IntentionStatus = domain.IntentionPending
	return nil
}

func (f *fakeTriggerStore) FinalizeIntention(_ context.Context, id uuid.UUID, intention string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return false, leads.ErrNotFound
	}
	if lead.IntentionStatus == domain.IntentionFinalized || lead.IntentionStatus == domain.IntentionSentToClient {
		return false, nil
	}
	lead.IntentionStatus = domain.IntentionFinalized
	lead.Intention = &intention
	return true, nil
}

func (f *fakeTriggerStore) ExpireLead(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return false, leads.ErrNotFound
	}
	if lead.IntentionStatus != domain.IntentionPending {
		return false, nil
	}
	label := domain.LabelNoResponse
	lead.IntentionStatus = domain.IntentionFinalized
	lead.Intention = &label
	return true, nil
}

func (f *fakeTriggerStore) LastOutboundMessage(_ context.Context, leadID uuid.UUID) (leads.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.outbound[leadID]
	if len(msgs) == 0 {
		return leads.Message{}, false, nil
	}
	return msgs[len(msgs)-1], true, nil
}

func (f *fakeTriggerStore) HasInboundAfter(_ context.Context, leadID uuid.UUID, after time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.inbound[leadID] {
		if msg.CreatedAt.After(after) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTriggerStore) ListRecentInbound(_ context.Context, leadID uuid.UUID, limit int) ([]leads.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.inbound[leadID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]leads.Message(nil), msgs...), nil
}

func (f *fakeTriggerStore) InsertMessage(_ context.Context, leadID uuid.UUID, direction, body string) (leads.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := leads.Message{ID: uuid.New(), LeadID: leadID, Direction: direction, Body: body, CreatedAt: time.Now()}
	if direction == leads.DirectionOutbound {
		f.outbound[leadID] = append(f.outbound[leadID], msg)
	} else {
		f.inbound[leadID] = append(f.inbound[leadID], msg)
	}
	return msg, nil
}

func (f *fakeTriggerStore) addInbound(leadID uuid.UUID, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, body := range bodies {
		f.inbound[leadID] = append(f.inbound[leadID], leads.Message{
			ID: uuid.New(), LeadID: leadID, Direction: leads.DirectionInbound, Body: body, CreatedAt: time.Now(),
		})
	}
}

type fakeOptionReader struct {
	options map[string]campaigns.Option
}

func (f *fakeOptionReader) GetOption(_ context.Context, _ uuid.UUID, key string) (campaigns.Option, error) {
	opt, ok := f.options[key]
	if !ok {
		return campaigns.Option{}, campaigns.ErrOptionNotFound
	}
	return opt, nil
}

type fakeSourceReader struct {
	sources map[uuid.UUID]campaigns.Source
}

func (f *fakeSourceReader) GetSource(_ context.Context, id uuid.UUID) (campaigns.Source, error) {
	src, ok := f.sources[id]
	if !ok {
		return campaigns.Source{}, campaigns.ErrSourceNotFound
	}
	return src, nil
}

type fakeCampaignReader struct {
	campaign campaigns.Campaign
}

func (f *fakeCampaignReader) GetCampaign(_ context.Context, id uuid.UUID) (campaigns.Campaign, error) {
	if id != f.campaign.ID {
		return campaigns.Campaign{}, campaigns.ErrCampaignNotFound
	}
	return f.campaign, nil
}

type sentMessage struct {
	source campaigns.Source
	phone  string
	body   string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, source campaigns.Source, toPhone, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{source: source, phone: toPhone, body: body})
	return nil
}

type fakeClassifier struct {
	label string
	err   error
	calls [][]string
}

func (f *fakeClassifier) Classify(_ context.Context, messages []string, _ string) (string, error) {
	f.calls = append(f.calls, messages)
	return f.label, f.err
}

type fakeAssigner struct {
	assigned []uuid.UUID
	err      error
}

func (f *fakeAssigner) AssignLead(_ context.Context, lead leads.Lead) error {
	if f.err != nil {
		return f.err
	}
	f.assigned = append(f.assigned, lead.ID)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

type scheduledSend struct {
	leadID   uuid.UUID
	sourceID uuid.UUID
	body     string
	delay    time.Duration
}

type fakeMessageScheduler struct {
	sends []scheduledSend
}

func (f *fakeMessageScheduler) ScheduleMessageSend(_ context.Context, leadID, sourceID uuid.UUID, body string, delay time.Duration) error {
	f.sends = append(f.sends, scheduledSend{leadID: leadID, sourceID: sourceID, body: body, delay: delay})
	return nil
}

type scheduledWebhook struct {
	leadID   uuid.UUID
	sourceID uuid.UUID
	attempt  int
}

type fakeWebhookScheduler struct {
	deliveries []scheduledWebhook
}

func (f *fakeWebhookScheduler) ScheduleWebhookDelivery(_ context.Context, leadID, sourceID uuid.UUID, attempt int, _ time.Duration, _ map[string]any) error {
	f.deliveries = append(f.deliveries, scheduledWebhook{leadID: leadID, sourceID: sourceID, attempt: attempt})
	return nil
}

func strPtr(s string) *string { return &s }
