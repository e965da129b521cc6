package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/utils/logger"
	"go.uber.org/zap"
)

const (
	MinBackoff   = time.Second
	MaxBackoff   = 30 * time.Second
	PingInterval = 10 * time.Second
)

// Follower keeps an SSE stream open, reconnecting with exponential backoff.
// Once the server names the stream's connection it is pinged every
// PingInterval so the stream is not swept as silent.
type Follower struct {
	URL          string
	PingURL      string // defaults to URL's path + "/ping"
	HTTPClient   *http.Client
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
	Log          *zap.SugaredLogger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Follow streams events from url into handle until ctx is cancelled.
func Follow(ctx context.Context, url string, handle func(events.Event)) error {
	f := &Follower{URL: url}
	return f.Run(ctx, handle)
}

func (f *Follower) defaults() {
	if f.HTTPClient == nil {
		f.HTTPClient = &http.Client{}
	}
	if f.MinBackoff <= 0 {
		f.MinBackoff = MinBackoff
	}
	if f.MaxBackoff < f.MinBackoff {
		f.MaxBackoff = MaxBackoff
	}
	if f.PingInterval <= 0 {
		f.PingInterval = PingInterval
	}
	if f.PingURL == "" {
		f.PingURL = pingURL(f.URL)
	}
	if f.Log == nil {
		f.Log = logger.Log.Named("follow")
	}
	if f.sleep == nil {
		f.sleep = sleepCtx
	}
}

// pingURL maps ".../api/events?player=x" to ".../api/events/ping".
func pingURL(stream string) string {
	u, err := url.Parse(stream)
	if err != nil {
		return ""
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ping"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run returns only when ctx is done. The backoff resets once a stream has
// delivered at least one event.
func (f *Follower) Run(ctx context.Context, handle func(events.Event)) error {
	f.defaults()
	wait := f.MinBackoff
	for {
		got, err := f.stream(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if got > 0 {
			wait = f.MinBackoff
		}
		f.Log.Infof("[Follow] stream ended after %d events (%v), retrying in %s", got, err, wait)
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}
		wait *= 2
		if wait > f.MaxBackoff {
			wait = f.MaxBackoff
		}
	}
}

// ping keeps connID fresh until ctx ends. A 404 means the server already
// dropped the stream, so the stream is cancelled to force a reconnect.
func (f *Follower) ping(ctx context.Context, connID string, drop context.CancelFunc) {
	if f.PingURL == "" {
		return
	}
	body, err := json.Marshal(map[string]string{"connectionId": connID})
	if err != nil {
		return
	}
	t := time.NewTicker(f.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.PingURL, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.HTTPClient.Do(req)
		if err != nil {
			f.Log.Debugf("[Follow] ping %s failed: %v", connID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			f.Log.Infof("[Follow] server forgot connection %s", connID)
			drop()
			return
		}
	}
}

func (f *Follower) stream(parent context.Context, handle func(events.Event)) (int, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	got := 0
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				f.Log.Debugf("[Follow] skipping bad frame: %v", err)
			} else {
				got++
				if hb, ok := ev.Payload.(events.Heartbeat); ok && hb.ConnectionID != "" {
					go f.ping(ctx, hb.ConnectionID, cancel)
				}
				handle(ev)
			}
			data.Reset()
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return got, err
	}
	return got, fmt.Errorf("stream closed")
}
