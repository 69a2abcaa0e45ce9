package capture

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/ideaspark/ideaspark/internal/analysis"
	"github.com/ideaspark/ideaspark/internal/auth"
	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/internal/ideastore"
	"github.com/ideaspark/ideaspark/internal/observe"
	"github.com/ideaspark/ideaspark/internal/orchestrator"
	"github.com/ideaspark/ideaspark/pkg/provider/image"
)

// sendBuffer is the per-connection outbound queue length. A full queue
// drops the oldest pending frame; clients always converge on the next
// snapshot, so losing an intermediate one is harmless.
const sendBuffer = 32

// GatewayConfig carries the collaborators for [NewGateway].
type GatewayConfig struct {
	// Verifier authenticates the WebSocket handshake. Required.
	Verifier auth.Verifier

	// Store backs snapshots and all persistence effects. Required.
	Store ideastore.Store

	// Analyst provides extraction and mutation. Required.
	Analyst analysis.Analyst

	// Images provides illustrative image generation. Optional.
	Images image.Provider

	// OriginPatterns restricts accepted WebSocket origins. Empty means
	// same-origin only.
	OriginPatterns []string

	// Metrics records gateway instrumentation. Optional.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Gateway upgrades HTTP requests to capture sessions. It implements
// [http.Handler].
type Gateway struct {
	cfg GatewayConfig

	// sessions tracks open connections so Close can wait for them.
	sessions sync.WaitGroup
}

// NewGateway creates a Gateway from cfg.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{cfg: cfg}
}

// ServeHTTP authenticates the request, upgrades it, and runs the capture
// session until the client disconnects or the request context ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := g.cfg.Verifier.Verify(r.Context(), auth.BearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.OriginPatterns,
	})
	if err != nil {
		g.cfg.Logger.Warn("websocket accept failed", "err", err)
		return
	}

	g.sessions.Add(1)
	defer g.sessions.Done()

	g.serve(r.Context(), conn, sess)
}

// Wait blocks until all open capture sessions have finished. Intended for
// shutdown after the HTTP server stops accepting connections.
func (g *Gateway) Wait() {
	g.sessions.Wait()
}

// serve runs one capture session over an accepted connection.
func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn, sess auth.Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := g.cfg.Logger.With("user_id", sess.UserID)

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.ActiveCaptureSessions.Add(ctx, 1)
		defer g.cfg.Metrics.ActiveCaptureSessions.Add(ctx, -1)
	}

	out := newSender(ctx, conn, logger)
	defer out.close()

	snapshot := orchestrator.NewSnapshot()

	orch := orchestrator.New(orchestrator.Config{
		Analyst: g.cfg.Analyst,
		Images:  g.cfg.Images,
		Store:   g.cfg.Store,
		Records: snapshot,
		Session: sess,
		Notifier: orchestrator.NotifierFunc(func(msg string) {
			out.send(outboundFrame{Type: frameError, Message: msg})
		}),
		Metrics: g.cfg.Metrics,
		Logger:  logger,
	})

	listener := orchestrator.NewListener(orchestrator.ListenerConfig{
		Orchestrator: orch,
		Logger:       logger,
		OnState: func(s orchestrator.ListenerState) {
			out.send(outboundFrame{Type: frameState, State: s.String()})
		},
	})

	// The live subscription keeps both the client and the mutation
	// snapshot current.
	var watch sync.WaitGroup
	if err := g.watch(ctx, &watch, sess.UserID, snapshot, out); err != nil {
		logger.Error("record subscription failed", "err", err)
		out.send(outboundFrame{Type: frameSyncError, Message: "Live sync unavailable. Displayed ideas may be stale."})
	}

	g.readLoop(ctx, conn, listener, logger)

	// Drain in-flight submissions before tearing the connection state
	// down; detached image patches outlive the session by design.
	cancel()
	listener.Wait()
	watch.Wait()
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// watch subscribes to the owner's record set and forwards every snapshot
// to the client and the orchestrator's record set.
func (g *Gateway) watch(ctx context.Context, wg *sync.WaitGroup, ownerID string, snapshot *orchestrator.Snapshot, out *sender) error {
	ch, err := g.cfg.Store.Watch(ctx, ownerID)
	if err != nil {
		return err
	}

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.ActiveWatchers.Add(ctx, 1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if g.cfg.Metrics != nil {
			defer g.cfg.Metrics.ActiveWatchers.Add(context.WithoutCancel(ctx), -1)
		}
		for recs := range ch {
			snapshot.Replace(recs)
			if recs == nil {
				recs = []idea.Idea{}
			}
			out.send(outboundFrame{Type: frameSnapshot, Ideas: recs})
		}
		// The subscription ends with the context on normal teardown;
		// anything else means the client is looking at stale data.
		if ctx.Err() == nil {
			out.send(outboundFrame{Type: frameSyncError, Message: "Live sync lost. Displayed ideas may be stale."})
		}
	}()
	return nil
}

// readLoop dispatches inbound frames until the connection drops.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, listener *orchestrator.Listener, logger *slog.Logger) {
	for {
		kind, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logger.Debug("capture connection read ended", "err", err)
			}
			return
		}
		if kind != websocket.MessageText {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("malformed capture frame", "err", err)
			continue
		}

		switch frame.Type {
		case frameCaptureStarted:
			listener.CaptureStarted()
		case frameCaptureResult:
			listener.CaptureResult(frame.Transcript)
		case frameCaptureError:
			listener.CaptureError(frame.Reason)
		case frameCaptureEnded:
			listener.CaptureEnded(ctx)
		case frameFocus:
			listener.SetFocus(orchestrator.Focus{IdeaID: frame.IdeaID})
		default:
			logger.Warn("unknown capture frame type", "type", frame.Type)
		}
	}
}

// sender serialises outbound frames onto the connection from a single
// writer goroutine. When the client cannot keep up, the oldest pending
// frame is dropped; the next snapshot restores consistency.
type sender struct {
	ch     chan outboundFrame
	done   chan struct{}
	closed sync.Once
	logger *slog.Logger
}

func newSender(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) *sender {
	s := &sender{
		ch:     make(chan outboundFrame, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(s.done)
		for frame := range s.ch {
			data, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("marshal outbound frame", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					s.logger.Debug("capture connection write ended", "err", err)
				}
				// Keep draining so senders never block after a dead
				// connection.
				for range s.ch { //nolint:revive
				}
				return
			}
		}
	}()
	return s
}

// send queues a frame, dropping the oldest pending one when full.
func (s *sender) send(frame outboundFrame) {
	for {
		select {
		case s.ch <- frame:
			return
		case <-s.done:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// close stops the writer after the queue drains.
func (s *sender) close() {
	s.closed.Do(func() { close(s.ch) })
	<-s.done
}
