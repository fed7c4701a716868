package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventCommentsChanged = "comments-changed"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "folio-backend"
	realtimeHeartbeatInterval    = 25 * time.Second
)

// RealtimeMessage announces that the discussion of a post changed.
type RealtimeMessage struct {
	PostSlug   string
	EventType  string
	CommentIDs []string
	Timestamp  time.Time
}

// RealtimeDispatcher fans out discussion changes to subscribers of a post.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for postSlug until ctx is done or the cleanup func runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, postSlug string) (<-chan RealtimeMessage, func()) {
	if postSlug == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(postSlug, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(postSlug, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to current subscribers; slow subscribers miss it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.PostSlug == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.PostSlug]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the listeners of postSlug.
func (d *RealtimeDispatcher) SubscriberCount(postSlug string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[postSlug])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(postSlug string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[postSlug]; !ok {
		d.subscribers[postSlug] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[postSlug][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(postSlug string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[postSlug]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, postSlug)
		}
	}
	d.mu.Unlock()
}

type realtimeEventPayload struct {
	PostSlug   string   `json:"postSlug"`
	CommentIDs []string `json:"commentIds"`
	Timestamp  int64    `json:"timestamp"`
	Source     string   `json:"source"`
}

func (h *httpHandler) publishCommentsChanged(postSlug string, commentIDs ...string) {
	h.realtime.Publish(RealtimeMessage{
		PostSlug:   postSlug,
		EventType:  RealtimeEventCommentsChanged,
		CommentIDs: commentIDs,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *httpHandler) handleCommentStream(c *gin.Context) {
	slug, ok := h.resolveDiscussionSlug(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, slug.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("comment stream closed", zap.String("post_slug", slug.String()))
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				PostSlug:   message.PostSlug,
				CommentIDs: message.CommentIDs,
				Timestamp:  message.Timestamp.Unix(),
				Source:     realtimeSourceBackend,
			})
			c.Writer.Flush()
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC().Unix()})
			c.Writer.Flush()
		}
	}
}
