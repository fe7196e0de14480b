// Package dashboard serves the sync daemon's live feed.
//
// A Server is the daemon's sync Observer. Every finished cycle is sent to
// WebSocket subscribers at /ws, followed by fresh shop statistics (pending
// rows, stock warnings). A subscriber's first frame is the latest
// statistics, and GET / returns the same statistics as a JSON summary.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	stocksync "github.com/stockbook/stockbook/internal/sync"
)

const (
	// subscriberBuffer is how many frames a subscriber may fall behind
	// before it is disconnected.
	subscriberBuffer = 16

	writeTimeout    = 5 * time.Second
	statsTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server fans sync cycles and statistics out to subscribers. Build it with
// New, register it as the engine's Observer and call Run.
type Server struct {
	stats  StatsSource
	logger *log.Logger

	// reports queues finished cycles for Run.
	reports chan *stocksync.Report

	// online is owned by Run.
	online bool

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest *StatsData
	// welcome is the encoded latest stats frame.
	welcome []byte
}

// subscriber is one WebSocket client. send is closed when the client is
// dropped for falling behind.
type subscriber struct {
	send chan []byte
}

// Summary is the body of GET /.
type Summary struct {
	Clients int        `json:"clients"`
	Stats   *StatsData `json:"stats,omitempty"`
}

// New creates a feed server. stats may be nil, in which case only sync
// frames are sent.
func New(stats StatsSource, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Server{
		stats:   stats,
		logger:  logger,
		reports: make(chan *stocksync.Report, 8),
		subs:    make(map[*subscriber]struct{}),
	}
}

// SyncCompleted implements the sync Observer. It queues the report for Run
// and never blocks the engine.
func (s *Server) SyncCompleted(report *stocksync.Report) {
	select {
	case s.reports <- report:
	default:
		s.logger.Printf("Dropping sync report from %s: feed is behind", report.FinishedAt.Format(time.RFC3339))
	}
}

// Run serves the feed on ln until ctx is cancelled, then disconnects every
// subscriber and shuts the HTTP server down. Statistics are computed once
// before the first request is served.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	s.refresh(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveFeed)
	mux.HandleFunc("/", s.serveSummary)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	s.logger.Printf("Dashboard listening on %s", ln.Addr())

	for {
		select {
		case report := <-s.reports:
			s.online = report.Online
			msg, err := newMessage(MessageTypeSyncComplete, report.FinishedAt, syncData(report))
			if err != nil {
				s.logger.Printf("Failed to encode sync report: %v", err)
				continue
			}
			s.publish(msg)
			s.refresh(ctx)

		case err := <-served:
			s.disconnectAll()
			return fmt.Errorf("dashboard server: %w", err)

		case <-ctx.Done():
			s.disconnectAll()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			if serr := <-served; serr != nil && !errors.Is(serr, http.ErrServerClosed) && err == nil {
				err = serr
			}
			s.logger.Println("Dashboard stopped")
			return err
		}
	}
}

// refresh recomputes statistics, keeps them as the welcome frame and
// publishes them.
func (s *Server) refresh(ctx context.Context) {
	if s.stats == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, statsTimeout)
	stats, err := s.stats(sctx)
	cancel()
	if err != nil {
		s.logger.Printf("Failed to compute stats: %v", err)
		return
	}
	stats.Online = s.online

	msg, err := newMessage(MessageTypeStats, time.Time{}, stats)
	if err != nil {
		s.logger.Printf("Failed to encode stats: %v", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to encode stats: %v", err)
		return
	}

	s.mu.Lock()
	s.latest = stats
	s.welcome = data
	s.sendLocked(data)
	s.mu.Unlock()
}

// publish sends msg to every subscriber.
func (s *Server) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to encode %s frame: %v", msg.Type, err)
		return
	}
	s.mu.Lock()
	s.sendLocked(data)
	s.mu.Unlock()
}

// sendLocked queues data on each subscriber, dropping those whose buffer
// is full. s.mu must be held.
func (s *Server) sendLocked(data []byte) {
	for sub := range s.subs {
		select {
		case sub.send <- data:
		default:
			close(sub.send)
			delete(s.subs, sub)
			s.logger.Printf("Dropped slow subscriber (total: %d)", len(s.subs))
		}
	}
}

// subscribe registers a subscriber whose first frame is the latest stats.
func (s *Server) subscribe() *subscriber {
	sub := &subscriber{send: make(chan []byte, subscriberBuffer)}
	s.mu.Lock()
	if s.welcome != nil {
		sub.send <- s.welcome
	}
	s.subs[sub] = struct{}{}
	n := len(s.subs)
	s.mu.Unlock()
	s.logger.Printf("Subscriber connected (total: %d)", n)
	return sub
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	_, ok := s.subs[sub]
	delete(s.subs, sub)
	n := len(s.subs)
	s.mu.Unlock()
	if ok {
		s.logger.Printf("Subscriber disconnected (total: %d)", n)
	}
}

// disconnectAll closes every subscriber's queue so its writer exits.
func (s *Server) disconnectAll() {
	s.mu.Lock()
	for sub := range s.subs {
		close(sub.send)
		delete(s.subs, sub)
	}
	s.mu.Unlock()
}

// serveFeed streams frames to one WebSocket client. Anything the client
// sends is discarded.
func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()

	sub := s.subscribe()
	defer s.unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// serveSummary reports the subscriber count and the latest statistics.
func (s *Server) serveSummary(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	summary := Summary{Clients: len(s.subs), Stats: s.latest}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// ClientCount returns the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
