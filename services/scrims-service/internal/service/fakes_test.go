package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/services/scrims-service/internal/events/publisher"
	"github.com/scrimx/scrims/services/scrims-service/internal/metrics"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
	"github.com/scrimx/scrims/services/scrims-service/internal/repository"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	Target string
	Msg    platform.OutboundMessage
}

type fakePlatform struct {
	mu sync.Mutex

	sent     []sentMessage
	dms      []sentMessage
	channels map[string][]platform.Message
	locked   map[string]bool
	granted  []string
	revoked  []string
	nextID   int

	lockErr  error
	dmErr    error
	grantErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: make(map[string][]platform.Message),
		locked:   make(map[string]bool),
	}
}

func (p *fakePlatform) SendMessage(ctx context.Context, channelID string, msg platform.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.sent = append(p.sent, sentMessage{Target: channelID, Msg: msg})
	p.channels[channelID] = append(p.channels[channelID], platform.Message{
		ID:      fmt.Sprintf("msg-%d", p.nextID),
		Kind:    msg.Kind,
		FromBot: true,
	})
	return nil
}

func (p *fakePlatform) SendDirectMessage(ctx context.Context, userID string, msg platform.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dms = append(p.dms, sentMessage{Target: userID, Msg: msg})
	return p.dmErr
}

func (p *fakePlatform) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.channels[channelID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]platform.Message(nil), msgs...), nil
}

func (p *fakePlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.channels[channelID][:0]
	for _, m := range p.channels[channelID] {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	p.channels[channelID] = kept
	return nil
}

func (p *fakePlatform) LockChannel(ctx context.Context, guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockErr != nil {
		return p.lockErr
	}
	p.locked[channelID] = true
	return nil
}

func (p *fakePlatform) UnlockChannel(ctx context.Context, guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked[channelID] = false
	return nil
}

func (p *fakePlatform) GrantRole(ctx context.Context, guildID, roleID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grantErr != nil {
		return p.grantErr
	}
	p.granted = append(p.granted, userID)
	return nil
}

func (p *fakePlatform) RevokeRole(ctx context.Context, guildID, roleID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, userID)
	return nil
}

func (p *fakePlatform) kinds(channelID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.channels[channelID] {
		out = append(out, m.Kind)
	}
	return out
}

func (p *fakePlatform) dmCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dms)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event publisher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) count(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Subject == subject {
			n++
		}
	}
	return n
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc      ScrimsService
	store    *repository.Store
	platform *fakePlatform
	events   *fakePublisher
	clock    *testClock
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	bolt, err := repository.NewBoltStore(filepath.Join(t.TempDir(), "scrims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	env := &testEnv{
		store:    bolt.AsStore(),
		platform: newFakePlatform(),
		events:   &fakePublisher{},
		clock:    &testClock{t: time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)},
		metrics:  metrics.New(),
	}
	opts.Now = env.clock.Now
	if opts.ReminderRate == 0 {
		opts.ReminderRate = 1000
	}
	env.svc = NewScrimsService(env.store, env.platform, env.events, nil, env.metrics, logger.Nop(), opts)
	return env
}
