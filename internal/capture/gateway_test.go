package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	analysismock "github.com/ideaspark/ideaspark/internal/analysis/mock"
	"github.com/ideaspark/ideaspark/internal/auth"
	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/internal/ideastore"
)

// testGateway spins up a gateway over an in-memory store with a scripted
// analyst and returns a connected client.
type testGateway struct {
	store   *ideastore.MemStore
	analyst *analysismock.Analyst
	server  *httptest.Server
	conn    *websocket.Conn
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	tg := &testGateway{
		store:   ideastore.NewMemStore(nil),
		analyst: &analysismock.Analyst{},
	}
	tg.analyst.AnalyzeResult = idea.Analysis{
		Title:          "Trail Logger",
		Description:    "Log hiking trails by voice.",
		Category:       idea.CategoryLeisure,
		Importance:     3,
		TargetAudience: "Hikers",
		Platform:       idea.PlatformMobile,
		Tags:           []string{"outdoors"},
		Blueprint:      "## System Architecture\n...",
	}

	gw := NewGateway(GatewayConfig{
		Verifier:       auth.Static{"tok-1": {UserID: "user-1"}},
		Store:          tg.store,
		Analyst:        tg.analyst,
		OriginPatterns: []string{"*"},
	})
	tg.server = httptest.NewServer(gw)
	t.Cleanup(tg.server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "?access_token=tok-1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	tg.conn = conn
	return tg
}

// sendFrame writes one inbound frame to the gateway.
func (tg *testGateway) sendFrame(t *testing.T, frame inboundFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tg.conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// waitFor reads outbound frames until one matches want (and, for state
// frames, the wanted state), failing the test on timeout.
func (tg *testGateway) waitFor(t *testing.T, want, wantState string) outboundFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := tg.conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %q frame: %v", want, err)
		}
		var frame outboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal outbound frame: %v", err)
		}
		if frame.Type != want {
			continue
		}
		if wantState != "" && frame.State != wantState {
			continue
		}
		return frame
	}
}

func TestGateway_RejectsBadCredentials(t *testing.T) {
	gw := NewGateway(GatewayConfig{
		Verifier: auth.Static{},
		Store:    ideastore.NewMemStore(nil),
		Analyst:  &analysismock.Analyst{},
	})
	server := httptest.NewServer(gw)
	defer server.Close()

	resp, err := http.Get(server.URL + "?access_token=wrong")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGateway_SendsInitialSnapshot(t *testing.T) {
	tg := newTestGateway(t)

	// Seed before connecting is racy with the subscription start, so the
	// empty initial snapshot is also acceptable; all we require is that a
	// snapshot arrives unprompted.
	frame := tg.waitFor(t, frameSnapshot, "")
	if frame.Ideas == nil {
		t.Error("snapshot frame has null ideas, want empty array")
	}
}

func TestGateway_UtteranceCreatesIdeaAndPushesSnapshot(t *testing.T) {
	tg := newTestGateway(t)
	tg.waitFor(t, frameSnapshot, "")

	tg.sendFrame(t, inboundFrame{Type: frameCaptureStarted})
	tg.waitFor(t, frameState, "listening")

	tg.sendFrame(t, inboundFrame{Type: frameCaptureResult, Transcript: "an app to log hiking trails"})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureEnded})

	tg.waitFor(t, frameState, "processing")
	tg.waitFor(t, frameState, "idle")

	// The created record reaches the client through the live snapshot.
	snap := tg.waitFor(t, frameSnapshot, "")
	if len(snap.Ideas) != 1 {
		t.Fatalf("snapshot has %d ideas, want 1", len(snap.Ideas))
	}
	if snap.Ideas[0].Title != "Trail Logger" {
		t.Errorf("Title = %q", snap.Ideas[0].Title)
	}
	if snap.Ideas[0].OwnerID != "user-1" {
		t.Errorf("OwnerID = %q, want user-1", snap.Ideas[0].OwnerID)
	}
}

func TestGateway_FocusedUtteranceMutatesRecord(t *testing.T) {
	tg := newTestGateway(t)
	tg.waitFor(t, frameSnapshot, "")

	created, err := tg.store.Create(context.Background(), idea.Idea{
		OwnerID:    "user-1",
		Title:      "Trail Logger",
		Status:     idea.StatusIdea,
		Category:   idea.CategoryLeisure,
		Importance: 3,
		Platform:   idea.PlatformMobile,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// The seeded record must reach the session snapshot before the
	// mutation can resolve it.
	snap := tg.waitFor(t, frameSnapshot, "")
	if len(snap.Ideas) != 1 {
		t.Fatalf("snapshot has %d ideas, want 1", len(snap.Ideas))
	}

	tg.analyst.ProposeFunc = func(current idea.Idea, _ string) (idea.Idea, error) {
		current.Status = idea.StatusDevelopment
		return current, nil
	}

	tg.sendFrame(t, inboundFrame{Type: frameFocus, IdeaID: created.ID})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureStarted})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureResult, Transcript: "move this to development"})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureEnded})
	tg.waitFor(t, frameState, "idle")

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := tg.store.Get(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == idea.StatusDevelopment {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("record never mutated, status = %q", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGateway_AnalysisFailureSendsErrorFrame(t *testing.T) {
	tg := newTestGateway(t)
	tg.waitFor(t, frameSnapshot, "")

	tg.analyst.AnalyzeErr = errors.New("model overloaded")

	tg.sendFrame(t, inboundFrame{Type: frameCaptureStarted})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureResult, Transcript: "an idea"})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureEnded})

	frame := tg.waitFor(t, frameError, "")
	if !strings.Contains(frame.Message, "model overloaded") {
		t.Errorf("error message = %q, want service message", frame.Message)
	}

	recs, _ := tg.store.ListByOwner(context.Background(), "user-1")
	if len(recs) != 0 {
		t.Errorf("store has %d records after failed extraction", len(recs))
	}
}

func TestGateway_CaptureErrorDoesNotLoseUtterance(t *testing.T) {
	tg := newTestGateway(t)
	tg.waitFor(t, frameSnapshot, "")

	tg.sendFrame(t, inboundFrame{Type: frameCaptureStarted})
	tg.waitFor(t, frameState, "listening")
	tg.sendFrame(t, inboundFrame{Type: frameCaptureResult, Transcript: "an app to log hiking trails"})
	tg.sendFrame(t, inboundFrame{Type: frameCaptureError, Reason: "network"})
	tg.waitFor(t, frameState, "idle")

	// The error alone starts no operation and sends no error frame.
	if n := len(tg.analyst.Analyzes()); n != 0 {
		t.Errorf("analyst called %d times before the end event", n)
	}

	// The recognizer delivers its end event after the error; the text
	// accumulated before the failure is still submitted.
	tg.sendFrame(t, inboundFrame{Type: frameCaptureEnded})

	deadline := time.Now().Add(5 * time.Second)
	for {
		recs, err := tg.store.ListByOwner(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("ListByOwner: %v", err)
		}
		if len(recs) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("record never created, store has %d records", len(recs))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if calls := tg.analyst.Analyzes(); len(calls) != 1 || calls[0].Transcript != "an app to log hiking trails" {
		t.Errorf("analyst calls = %+v, want the pre-error transcript", calls)
	}
}

func TestGateway_UnknownFramesAreIgnored(t *testing.T) {
	tg := newTestGateway(t)
	tg.waitFor(t, frameSnapshot, "")

	tg.sendFrame(t, inboundFrame{Type: "bogus"})

	// The connection stays usable.
	tg.sendFrame(t, inboundFrame{Type: frameCaptureStarted})
	tg.waitFor(t, frameState, "listening")
}
