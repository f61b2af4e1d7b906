package events

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/metrics"
)

type collector struct {
	mu  sync.Mutex
	got []Event
}

func (c *collector) handle(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.got {
		out = append(out, e.Name)
	}
	return out
}

func TestBus_DeliversByName(t *testing.T) {
	b := NewBus(logging.Nop())
	all, created := &collector{}, &collector{}
	b.Subscribe("", 8, all.handle)
	b.Subscribe("security.finding.created", 8, created.handle)

	ctx := context.Background()
	b.Publish(ctx, Event{Name: "security.finding.created", TenantID: "t1"})
	b.Publish(ctx, Event{Name: "scan.completed", TenantID: "t1"})
	b.Close()

	assert.Equal(t, []string{"security.finding.created", "scan.completed"}, all.names())
	assert.Equal(t, []string{"security.finding.created"}, created.names())
}

func TestBus_DropsWhenBufferFull(t *testing.T) {
	b := NewBus(logging.Nop())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := &collector{}
	b.Subscribe("", 1, func(ctx context.Context, e Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		slow.handle(ctx, e)
	})

	before := testutil.ToFloat64(metrics.EventsDroppedTotal)
	ctx := context.Background()

	b.Publish(ctx, Event{Name: "e1"})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}
	b.Publish(ctx, Event{Name: "e2"}) // buffered
	b.Publish(ctx, Event{Name: "e3"}) // dropped

	close(release)
	b.Close()

	assert.Equal(t, []string{"e1", "e2"}, slow.names())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EventsDroppedTotal))
}

func TestBus_PublishAfterCloseIsIgnored(t *testing.T) {
	b := NewBus(logging.Nop())
	c := &collector{}
	b.Subscribe("", 0, c.handle)
	b.Close()
	b.Close()

	b.Publish(context.Background(), Event{Name: "late"})
	b.Subscribe("", 0, c.handle)
	assert.Empty(t, c.names())
}

func TestBus_HandlerPanicDoesNotKillSubscriber(t *testing.T) {
	b := NewBus(logging.Nop())
	c := &collector{}
	b.Subscribe("", 4, func(ctx context.Context, e Event) {
		if e.Name == "boom" {
			panic("handler failure")
		}
		c.handle(ctx, e)
	})

	b.Publish(context.Background(), Event{Name: "boom"})
	b.Publish(context.Background(), Event{Name: "ok"})
	b.Close()

	assert.Equal(t, []string{"ok"}, c.names())
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LogHandler(logging.New("info", "text", &buf))

	h(context.Background(), Event{
		Name:     "security.finding.created",
		TenantID: "t1",
		Payload:  map[string]any{"findingId": "aws-x", "severity": "critical", "ignored": 1},
	})

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "event=security.finding.created")
	assert.Contains(t, out, "tenant_id=t1")
	assert.Contains(t, out, "findingId=aws-x")
	assert.NotContains(t, out, "ignored")
}

func TestDiscard(t *testing.T) {
	Discard.Publish(context.Background(), Event{Name: "x"})
}
