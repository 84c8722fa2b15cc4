package pocketbase

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

const realtimePath = "/api/realtime"

// realtime multiplexes every collection subscription over one SSE stream.
type realtime struct {
	c *Client

	mu       sync.Mutex
	subs     map[int]rtSub
	nextID   int
	running  bool
	cancel   context.CancelFunc
	clientID string
	posted   map[string]bool
	ready    chan struct{}
	isReady  bool
	err      error
}

type rtSub struct {
	collection string
	scope      dashboard.Principal
	fn         func(dashboard.ChangeEvent)
}

type sseEvent struct {
	id   string
	name string
	data []string
}

func newRealtime(c *Client) *realtime {
	return &realtime{c: c, subs: make(map[int]rtSub), posted: make(map[string]bool)}
}

// Subscribe delivers change events for rows of collection owned by scope.
// It returns once the server has acknowledged the subscription.
func (c *Client) Subscribe(ctx context.Context, collection string, scope dashboard.Principal, onChange func(dashboard.ChangeEvent)) (dashboard.Subscription, error) {
	if scope == "" {
		return nil, &dashboard.AuthError{Reason: "no principal"}
	}
	return c.realtime().add(ctx, rtSub{collection: collection, scope: scope, fn: onChange})
}

func (r *realtime) add(ctx context.Context, sub rtSub) (dashboard.Subscription, error) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = sub
	if !r.running {
		r.running = true
		r.err = nil
		r.ready = make(chan struct{})
		r.isReady = false
		loopCtx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		go r.loop(loopCtx)
	}
	ready := r.ready
	r.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		_ = r.remove(id)
		return nil, ctx.Err()
	}

	r.mu.Lock()
	err := r.err
	clientID := r.clientID
	needPost := !r.posted[topic(sub.collection)]
	r.mu.Unlock()
	if err != nil {
		_ = r.remove(id)
		return nil, err
	}
	if needPost && clientID != "" {
		if err := r.postTopics(ctx, clientID); err != nil {
			_ = r.remove(id)
			return nil, err
		}
	}
	return dashboard.SubscriptionFunc(func() error { return r.remove(id) }), nil
}

func (r *realtime) remove(id int) error {
	r.mu.Lock()
	if _, ok := r.subs[id]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, id)
	if len(r.subs) == 0 {
		r.stopLocked()
		r.mu.Unlock()
		return nil
	}
	clientID := r.clientID
	r.mu.Unlock()
	if clientID == "" {
		return nil
	}
	return r.postTopics(context.Background(), clientID)
}

func (r *realtime) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[int]rtSub)
	r.stopLocked()
}

func (r *realtime) stopLocked() {
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = nil
	r.running = false
	r.clientID = ""
	r.posted = make(map[string]bool)
	r.markReadyLocked()
}

func (r *realtime) markReadyLocked() {
	if r.ready != nil && !r.isReady {
		close(r.ready)
		r.isReady = true
	}
}

func (r *realtime) loop(ctx context.Context) {
	b := newBackoff(r.c.retry)
	connected := false
	for {
		err := r.stream(ctx, connected, func() {
			connected = true
			b.reset()
		})
		if ctx.Err() != nil {
			return
		}
		if !Retryable(err) {
			r.c.log.Warn("realtime stopped", zap.Error(err))
			r.stopWith(classify(err))
			return
		}
		wait := b.next()
		r.c.log.Warn("realtime disconnected", zap.Error(err), zap.Duration("retry_in", wait))
		r.mu.Lock()
		r.clientID = ""
		r.posted = make(map[string]bool)
		r.mu.Unlock()
		if !sleep(ctx, wait) {
			return
		}
	}
}

// stopWith ends the stream for good. Callers still waiting in add get err;
// established subscriptions receive a final ActionClosed event and are
// dropped, so the next Subscribe starts a fresh stream.
func (r *realtime) stopWith(err error) {
	r.mu.Lock()
	r.err = err
	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.clientID = ""
	r.posted = make(map[string]bool)
	wasReady := r.isReady
	r.markReadyLocked()
	var subs []rtSub
	if wasReady {
		ids := make([]int, 0, len(r.subs))
		for id := range r.subs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			subs = append(subs, r.subs[id])
		}
		r.subs = make(map[int]rtSub)
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.fn(dashboard.ChangeEvent{Collection: s.collection, Action: dashboard.ActionClosed, Err: err})
	}
}

// stream reads one SSE connection until it ends.
func (r *realtime) stream(ctx context.Context, reconnect bool, onConnect func()) error {
	req, err := r.c.newRequest(ctx, http.MethodGet, realtimePath, nil, "")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := r.c.stream.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if ev.name != "" || len(ev.data) > 0 {
				if err := r.dispatch(ctx, ev, reconnect, onConnect); err != nil {
					return err
				}
			}
			ev = sseEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.id = value
		case "event":
			ev.name = value
		case "data":
			ev.data = append(ev.data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (r *realtime) dispatch(ctx context.Context, ev sseEvent, reconnect bool, onConnect func()) error {
	data := []byte(strings.Join(ev.data, "\n"))
	if ev.name == "PB_CONNECT" {
		var doc struct {
			ClientID string `json:"clientId"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		r.mu.Lock()
		r.clientID = doc.ClientID
		r.mu.Unlock()
		if err := r.postTopics(ctx, doc.ClientID); err != nil {
			return err
		}
		onConnect()
		r.mu.Lock()
		r.markReadyLocked()
		r.mu.Unlock()
		r.c.log.Debug("realtime connected", zap.String("client_id", doc.ClientID))
		if reconnect {
			r.broadcastResync()
		}
		return nil
	}

	collection := strings.TrimSuffix(ev.name, "/*")
	var doc struct {
		Action string           `json:"action"`
		Record dashboard.Record `json:"record"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		r.c.log.Warn("realtime payload", zap.String("event", ev.name), zap.Error(err))
		return nil
	}
	change := dashboard.ChangeEvent{
		Collection: collection,
		Action:     dashboard.Action(doc.Action),
		RecordID:   doc.Record.ID(),
		Record:     doc.Record,
	}
	for _, s := range r.matching(collection, doc.Record.Owner()) {
		s.fn(change)
	}
	return nil
}

func (r *realtime) matching(collection string, owner dashboard.Principal) []rtSub {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.subs))
	for id, s := range r.subs {
		if s.collection == collection && (owner == "" || owner == s.scope) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]rtSub, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.subs[id])
	}
	return out
}

func (r *realtime) broadcastResync() {
	r.mu.Lock()
	subs := make([]rtSub, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.fn(dashboard.ChangeEvent{Collection: s.collection, Action: dashboard.ActionResync})
	}
}

// postTopics replaces the server-side subscription set for clientID.
func (r *realtime) postTopics(ctx context.Context, clientID string) error {
	r.mu.Lock()
	set := make(map[string]bool)
	for _, s := range r.subs {
		set[topic(s.collection)] = true
	}
	r.mu.Unlock()
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	body := map[string]any{"clientId": clientID, "subscriptions": topics}
	if err := r.c.doJSON(ctx, http.MethodPost, realtimePath, body, nil); err != nil {
		return err
	}
	r.mu.Lock()
	if r.clientID == clientID {
		r.posted = set
	}
	r.mu.Unlock()
	return nil
}

func topic(collection string) string { return collection + "/*" }
