package broadcast

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bellapacxx/bingo-live/events"
	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	id     string
	refuse bool

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) received(t *testing.T) []events.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Event, 0, len(f.frames))
	for _, b := range f.frames {
		var ev events.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("decode frame %s: %v", b, err)
		}
		out = append(out, ev)
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *sinkRecorder) Publish(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sinkRecorder) presence() []events.PlayerPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.PlayerPresence
	for _, ev := range s.events {
		if p, ok := ev.Payload.(events.PlayerPresence); ok {
			out = append(out, p)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHub(t *testing.T, opts ...HubOption) (*Hub, *sinkRecorder, *clock) {
	t.Helper()
	sink := &sinkRecorder{}
	clk := &clock{now: time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)}
	opts = append([]HubOption{
		WithSink(sink),
		WithSilenceTimeout(25 * time.Second),
		WithHubLogger(zaptest.NewLogger(t).Sugar()),
		withClock(clk.Now),
	}, opts...)
	return NewHub(opts...), sink, clk
}

func TestPublishPreservesOrder(t *testing.T) {
	hub, _, _ := newTestHub(t)
	a, b := &fakeConn{id: "a"}, &fakeConn{id: "b"}
	hub.Add(a, "")
	hub.Add(b, "")

	for i := 1; i <= 5; i++ {
		hub.Publish(events.New(events.NumberDrawn{Number: i * 3, Seq: i}))
	}

	for _, c := range []*fakeConn{a, b} {
		got := c.received(t)
		if len(got) != 5 {
			t.Fatalf("%s received %d events, want 5", c.id, len(got))
		}
		for i, ev := range got {
			nd, ok := ev.Payload.(events.NumberDrawn)
			if !ok || nd.Seq != i+1 {
				t.Fatalf("%s event %d = %+v, want seq %d", c.id, i, ev.Payload, i+1)
			}
		}
	}
}

func TestTargetedEventsReachOnlyRecipients(t *testing.T) {
	hub, sink, _ := newTestHub(t)
	ana1, ana2, bia, anon := &fakeConn{id: "ana-phone"}, &fakeConn{id: "ana-tablet"}, &fakeConn{id: "bia"}, &fakeConn{id: "anon"}
	hub.Add(ana1, "ana")
	hub.Add(ana2, "ana")
	hub.Add(bia, "bia")
	hub.Add(anon, "")
	before := len(sink.events)

	hub.Publish(events.New(events.GameStateChanged{Reset: true, Card: []int{1}}).To("ana"))

	for _, c := range []*fakeConn{ana1, ana2} {
		got := c.received(t)
		if last := got[len(got)-1]; last.Type != events.TypeGameStateChanged {
			t.Fatalf("%s last event = %s, want gameStateChanged", c.id, last.Type)
		}
	}
	for _, c := range []*fakeConn{bia, anon} {
		for _, ev := range c.received(t) {
			if ev.Type == events.TypeGameStateChanged {
				t.Fatalf("%s received a card meant for ana", c.id)
			}
		}
	}
	if len(sink.events) != before {
		t.Fatal("targeted event reached the sink")
	}
}

func TestPresenceCountsDevices(t *testing.T) {
	hub, sink, _ := newTestHub(t)
	phone, laptop := &fakeConn{id: "phone"}, &fakeConn{id: "laptop"}

	hub.Add(phone, "ana")
	hub.Add(laptop, "ana")
	if n := hub.DeviceCount("ana"); n != 2 {
		t.Fatalf("DeviceCount = %d, want 2", n)
	}
	hub.Remove("phone")
	if !hub.IsConnected("ana") {
		t.Fatal("ana offline with one device left")
	}
	hub.Remove("laptop")
	if hub.IsConnected("ana") {
		t.Fatal("ana still online after last device left")
	}
	if !phone.isClosed() || !laptop.isClosed() {
		t.Fatal("removed connections were not closed")
	}

	want := []events.PlayerPresence{
		{PlayerID: "ana", Online: true, DeviceCount: 1},
		{PlayerID: "ana", Online: true, DeviceCount: 2},
		{PlayerID: "ana", Online: true, DeviceCount: 1},
		{PlayerID: "ana", Online: false, DeviceCount: 0},
	}
	got := sink.presence()
	if len(got) != len(want) {
		t.Fatalf("presence events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("presence[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBindMovesLink(t *testing.T) {
	hub, sink, _ := newTestHub(t)
	l := &fakeConn{id: "link"}
	hub.AddLink(l)
	if len(sink.presence()) != 0 {
		t.Fatal("unjoined link announced presence")
	}

	hub.Bind("link", "ana")
	if hub.PlayerOf("link") != "ana" || hub.DeviceCount("ana") != 1 {
		t.Fatalf("link not bound to ana")
	}
	hub.Bind("link", "bia")
	if hub.IsConnected("ana") || !hub.IsConnected("bia") {
		t.Fatal("rebinding did not move presence")
	}
	got := sink.presence()
	if last := got[len(got)-1]; last != (events.PlayerPresence{PlayerID: "bia", Online: true, DeviceCount: 1}) {
		t.Fatalf("last presence = %+v", last)
	}
}

func TestSweepDropsSilentConnections(t *testing.T) {
	hub, _, clk := newTestHub(t)
	quiet, chatty, anon, link := &fakeConn{id: "quiet"}, &fakeConn{id: "chatty"}, &fakeConn{id: "anon"}, &fakeConn{id: "link"}
	hub.Add(quiet, "ana")
	hub.Add(chatty, "bia")
	hub.Add(anon, "")
	hub.AddLink(link)

	clk.advance(20 * time.Second)
	hub.Touch("chatty")
	if n := hub.Sweep(); n != 0 {
		t.Fatalf("Sweep after 20s removed %d, want 0", n)
	}

	clk.advance(10 * time.Second)
	if hub.IsConnected("ana") {
		t.Fatal("silent player still reported online before sweep")
	}
	if n := hub.Sweep(); n != 2 {
		t.Fatalf("Sweep after 30s removed %d, want 2", n)
	}
	if !quiet.isClosed() || !link.isClosed() {
		t.Fatal("silent connections not closed")
	}
	if chatty.isClosed() || anon.isClosed() {
		t.Fatal("fresh or anonymous connection was swept")
	}
	if hub.Count() != 2 {
		t.Fatalf("Count = %d, want 2", hub.Count())
	}
}

func TestDeadConnectionRemovedOnPublish(t *testing.T) {
	hub, sink, _ := newTestHub(t)
	dead := &fakeConn{id: "dead"}
	live := &fakeConn{id: "live"}
	hub.Add(dead, "ana")
	hub.Add(live, "")
	dead.refuse = true

	hub.Publish(events.New(events.NumberDrawn{Number: 7, Seq: 1}))

	if hub.Count() != 1 || hub.IsConnected("ana") {
		t.Fatalf("dead connection survived publish")
	}
	got := sink.presence()
	if last := got[len(got)-1]; last.Online {
		t.Fatalf("last presence = %+v, want offline", last)
	}
	if n := len(live.received(t)); n == 0 {
		t.Fatal("live connection missed the broadcast")
	}
}

func TestTouchUnknown(t *testing.T) {
	hub, _, _ := newTestHub(t)
	if hub.Touch("nope") {
		t.Fatal("Touch(unknown) = true")
	}
}

func TestCloseDropsEverything(t *testing.T) {
	hub, _, _ := newTestHub(t)
	a := &fakeConn{id: "a"}
	hub.Add(a, "ana")
	hub.Close()
	if hub.Count() != 0 || !a.isClosed() {
		t.Fatal("Close left connections behind")
	}
}

func TestQueueRefusesWhenFullOrClosed(t *testing.T) {
	q := newQueue()
	for i := 0; i < sendBuffer; i++ {
		if !q.Enqueue([]byte("x")) {
			t.Fatalf("Enqueue %d refused before buffer filled", i)
		}
	}
	if q.Enqueue([]byte("x")) {
		t.Fatal("Enqueue on full queue = true")
	}
	q.Close()
	q.Close()
	if q.Enqueue([]byte("x")) {
		t.Fatal("Enqueue on closed queue = true")
	}
}

func TestSweepSparesConnectionTouchedAfterScan(t *testing.T) {
	hub, sink, clk := newTestHub(t)
	c := &fakeConn{id: "late"}
	hub.Add(c, "ana")
	clk.advance(30 * time.Second)

	// the sweep has picked "late" as stale; a ping lands before removal
	hub.Touch("late")
	if hub.remove("late", true) {
		t.Fatal("stale removal closed a connection touched after the scan")
	}
	if c.isClosed() || !hub.IsConnected("ana") {
		t.Fatal("touched connection was dropped")
	}
	if got := sink.presence(); got[len(got)-1] != (events.PlayerPresence{PlayerID: "ana", Online: true, DeviceCount: 1}) {
		t.Fatalf("last presence = %+v", got[len(got)-1])
	}

	clk.advance(30 * time.Second)
	if !hub.remove("late", true) || !c.isClosed() {
		t.Fatal("still-silent connection survived stale removal")
	}
}

func TestForgetClosesRemovedPlayersConnections(t *testing.T) {
	hub, sink, _ := newTestHub(t)
	phone, laptop, bia, anon := &fakeConn{id: "phone"}, &fakeConn{id: "laptop"}, &fakeConn{id: "bia"}, &fakeConn{id: "anon"}
	hub.Add(phone, "ana")
	hub.Add(laptop, "ana")
	hub.Add(bia, "bia")
	hub.Add(anon, "")
	before := len(sink.presence())

	hub.Forget("ana")
	if !phone.isClosed() || !laptop.isClosed() || hub.IsConnected("ana") {
		t.Fatal("ana's connections survived Forget")
	}
	if len(sink.presence()) != before {
		t.Fatal("Forget announced presence for a removed player")
	}
	hub.Publish(events.New(events.GameStateChanged{Reset: true}).To("ana"))

	hub.ForgetAll()
	if !bia.isClosed() || anon.isClosed() {
		t.Fatal("ForgetAll must close player streams and keep anonymous ones")
	}
	if hub.Count() != 1 {
		t.Fatalf("Count = %d, want 1", hub.Count())
	}
}
