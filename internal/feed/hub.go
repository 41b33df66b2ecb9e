// Package feed pushes newly stored chat messages to websocket subscribers.
// Subscribers still list messages over HTTP; the feed only tells them when
// to look.
package feed

import (
	"context"
	"log"

	"github.com/npezzotti/go-mediashare/internal/conversation"
	"github.com/npezzotti/go-mediashare/internal/stats"
	"github.com/npezzotti/go-mediashare/internal/types"
)

const ConnectionsMetric = "feed_connections"

type publishReq struct {
	scope string
	msg   types.Message
}

type Hub struct {
	log            *log.Logger
	stats          stats.StatsProvider
	subscribers    map[string]map[*Client]struct{}
	registerChan   chan *Client
	deRegisterChan chan *Client
	publishChan    chan publishReq
	stop           chan struct{}
	done           chan struct{}
}

func NewHub(logger *log.Logger, sp stats.StatsProvider) *Hub {
	sp.RegisterMetric(ConnectionsMetric)

	return &Hub{
		log:            logger,
		stats:          sp,
		subscribers:    make(map[string]map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		publishChan:    make(chan publishReq, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.registerChan:
			h.addClient(c)
		case c := <-h.deRegisterChan:
			h.removeClient(c)
		case req := <-h.publishChan:
			h.broadcast(req)
		case <-h.stop:
			h.log.Println("feed: closing subscriber connections")
			for _, clients := range h.subscribers {
				for c := range clients {
					c.queueMessage(&ServerMessage{Timestamp: Now(), Closing: true})
					c.stopClient()
					h.stats.Decr(ConnectionsMetric)
				}
			}
			h.subscribers = make(map[string]map[*Client]struct{})

			close(h.done)
			return
		}
	}
}

// Publish queues msg for every subscriber of scope. It never blocks; when
// the queue is full the notification is dropped.
func (h *Hub) Publish(scope conversation.Scope, msg types.Message) {
	select {
	case h.publishChan <- publishReq{scope: scope.Key(), msg: msg}:
	default:
		h.log.Printf("feed: publish queue full, dropping message %q", msg.Id)
	}
}

// RegisterClient subscribes c to its scope. It reports false once the hub
// has stopped.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.registerChan <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) deregister(c *Client) {
	select {
	case h.deRegisterChan <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	clients, ok := h.subscribers[c.scope]
	if !ok {
		clients = make(map[*Client]struct{})
		h.subscribers[c.scope] = clients
	}
	clients[c] = struct{}{}
	h.stats.Incr(ConnectionsMetric)
}

func (h *Hub) removeClient(c *Client) {
	clients, ok := h.subscribers[c.scope]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}

	delete(clients, c)
	if len(clients) == 0 {
		delete(h.subscribers, c.scope)
	}
	h.stats.Decr(ConnectionsMetric)
}

func (h *Hub) broadcast(req publishReq) {
	for c := range h.subscribers[req.scope] {
		if !c.queueMessage(newMessageFrame(req.scope, req.msg)) {
			h.log.Printf("feed: subscriber too slow, disconnecting from %q", req.scope)
			h.removeClient(c)
			c.stopClient()
		}
	}
}

func (h *Hub) subscriberCount(scope string) int {
	return len(h.subscribers[scope])
}

// Shutdown stops the hub and disconnects every subscriber.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("feed: received shutdown signal")
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
