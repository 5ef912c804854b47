package streaming

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream records the subscribe/unsubscribe frames the hub emits.
type fakeUpstream struct {
	mu           sync.Mutex
	subscribed   [][]string
	unsubscribed [][]string
}

func (f *fakeUpstream) Subscribe(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbols)
}

func (f *fakeUpstream) Unsubscribe(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbols)
}

func (f *fakeUpstream) allSubscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.subscribed {
		out = append(out, batch...)
	}
	return out
}

func (f *fakeUpstream) allUnsubscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.unsubscribed {
		out = append(out, batch...)
	}
	return out
}

func newTestHub() (*Hub, *fakeUpstream) {
	hub := NewHub(zerolog.Nop())
	up := &fakeUpstream{}
	hub.SetUpstream(up)
	return hub, up
}

func TestSubscribeForwardsOnlyNewSymbolsUpstream(t *testing.T) {
	hub, up := newTestHub()
	hub.Register("a")
	hub.Register("b")

	hub.Subscribe("a", "AAPL", "TSLA")
	hub.Subscribe("b", "AAPL", "MSFT")

	// AAPL is already held by client a, so only MSFT goes upstream.
	assert.ElementsMatch(t, []string{"AAPL", "TSLA", "MSFT"}, up.allSubscribed())
	assert.ElementsMatch(t, []string{"AAPL", "TSLA", "MSFT"}, hub.Union())
}

func TestUnsubscribeKeepsSharedSymbolUpstream(t *testing.T) {
	hub, up := newTestHub()
	hub.Register("a")
	hub.Register("b")
	hub.Subscribe("a", "AAPL", "TSLA")
	hub.Subscribe("b", "AAPL")

	hub.Unsubscribe("a", "AAPL", "TSLA")

	// Client b still holds AAPL; only TSLA leaves the upstream set.
	assert.ElementsMatch(t, []string{"TSLA"}, up.allUnsubscribed())
	assert.ElementsMatch(t, []string{"AAPL"}, hub.Union())
}

func TestDisconnectReleasesAllSubscriptions(t *testing.T) {
	hub, up := newTestHub()
	hub.Register("a")
	hub.Subscribe("a", "AAPL", "TSLA")

	hub.Disconnect("a")

	assert.ElementsMatch(t, []string{"AAPL", "TSLA"}, up.allUnsubscribed())
	assert.Empty(t, hub.Union())

	// Updates for a gone client go nowhere and must not panic.
	hub.OnPriceUpdate(PriceUpdate{Symbol: "AAPL", Price: 190.5})
}

func TestPriceUpdatesReachOnlySubscribedClients(t *testing.T) {
	hub, _ := newTestHub()
	a := hub.Register("a")
	b := hub.Register("b")
	hub.Subscribe("a", "AAPL")
	hub.Subscribe("b", "TSLA")

	hub.OnPriceUpdate(PriceUpdate{Symbol: "AAPL", Price: 190.5, Timestamp: time.Now()})

	select {
	case u := <-a.Updates():
		assert.Equal(t, "AAPL", u.Symbol)
		assert.Equal(t, 190.5, u.Price)
	default:
		t.Fatal("subscribed client received no update")
	}

	select {
	case u := <-b.Updates():
		t.Fatalf("unsubscribed client received update for %s", u.Symbol)
	default:
	}
}

func TestDeniedSymbolIsNotRetried(t *testing.T) {
	hub, up := newTestHub()
	a := hub.Register("a")
	hub.Subscribe("a", "AAPL")

	hub.OnSymbolDenied("AAPL", "not authorized for this symbol")

	// The affected client is notified and loses the subscription.
	select {
	case n := <-a.Notices():
		assert.Equal(t, NoticeSymbolUnavailable, n.Type)
		assert.Equal(t, "AAPL", n.Symbol)
	default:
		t.Fatal("expected a symbol_unavailable notice")
	}
	assert.Empty(t, hub.Union())

	// A later subscribe is rejected locally instead of going upstream.
	before := len(up.allSubscribed())
	hub.Subscribe("a", "AAPL")
	assert.Len(t, up.allSubscribed(), before)

	select {
	case n := <-a.Notices():
		assert.Equal(t, NoticeSymbolUnavailable, n.Type)
	default:
		t.Fatal("expected a notice for the rejected resubscribe")
	}
}

func TestReregisterReplacesClient(t *testing.T) {
	hub, _ := newTestHub()
	hub.Register("a")
	hub.Subscribe("a", "AAPL")

	fresh := hub.Register("a")

	require.Empty(t, hub.Union(), "replacing a client releases its subscriptions")
	hub.Subscribe("a", "TSLA")
	hub.OnPriceUpdate(PriceUpdate{Symbol: "TSLA", Price: 250})

	select {
	case u := <-fresh.Updates():
		assert.Equal(t, "TSLA", u.Symbol)
	default:
		t.Fatal("replacement client received no update")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
	assert.Equal(t, 32*time.Second, backoff(6))
	assert.Equal(t, 60*time.Second, backoff(7))
	assert.Equal(t, 60*time.Second, backoff(20))
}
