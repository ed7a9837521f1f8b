package signbridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/api"
	"github.com/hearme/signbridge/internal/config"
	"github.com/hearme/signbridge/internal/handlers"
	"github.com/hearme/signbridge/internal/predict"
	"github.com/hearme/signbridge/internal/relay"
	"github.com/hearme/signbridge/internal/rooms"
	"github.com/hearme/signbridge/internal/store"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := zerolog.Nop()
	h := handlers.NewHandler(handlers.Deps{
		Transcripts: relay.NewMemoryQueue("transcription", relay.DefaultCapacity),
		Gestures:    relay.NewMemoryQueue("gesture", relay.DefaultCapacity),
		Predictor:   predict.NewService(nil, nil, logger),
		Rooms:       rooms.NewService(nil, store.NewMemoryStore(), time.Hour, logger),
		Logger:      logger,
	})
	cfg := &config.Config{MaxBodyBytes: 65536, CORSAllowedOrigins: []string{"*"}}
	srv := httptest.NewServer(api.NewRouter(logger, cfg, h, nil))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClient_Relay(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.PostTranscription(ctx, "demo-room", Message{Type: Final, Text: "hello", ParticipantType: Hearing, ParticipantName: "Ann"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("id = %d", id)
	}
	c.PostTranscription(ctx, "demo-room", Message{Type: Partial, Text: "how", ParticipantType: Hearing, ParticipantName: "Ann"})

	msgs, err := c.Transcriptions(ctx, "demo-room", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "how" || msgs[0].Type != Partial || msgs[0].Timestamp == 0 {
		t.Errorf("transcriptions = %+v", msgs)
	}

	if _, err := c.PostGesture(ctx, "demo-room", Message{Type: Final, Text: "THANKS", ParticipantType: Deaf, ParticipantName: "Bo"}); err != nil {
		t.Fatal(err)
	}
	gestures, _ := c.Gestures(ctx, "demo-room", 0)
	if len(gestures) != 1 || gestures[0].Type != "" || gestures[0].ParticipantType != Deaf {
		t.Errorf("gestures = %+v", gestures)
	}
}

func TestClient_Errors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.PostTranscription(ctx, "r", Message{Type: "draft", Text: "x", ParticipantType: Hearing, ParticipantName: "A"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Message != "type must be 'partial' or 'final'" {
		t.Errorf("message = %q", apiErr.Message)
	}

	_, err = c.Predict(ctx, ModeAlphabet, make([]float32, 63))
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("predict without model: %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t)

	health, err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v", err)
	}
	if health == nil || health.Status != "degraded" || health.Checks["alphabet_model"].Status != "fail" {
		t.Errorf("health = %+v", health)
	}
}

func TestPoller(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.PostGesture(ctx, "r1", Message{Text: "A", ParticipantType: Deaf, ParticipantName: "D"})

	p := &Poller{Client: c, RoomID: "r1", Relay: Gestures, Interval: 10 * time.Millisecond}
	msgs, err := p.Poll(ctx)
	if err != nil || len(msgs) != 1 || p.Since != 1 {
		t.Fatalf("first poll = %+v %v since=%d", msgs, err, p.Since)
	}
	if msgs, _ := p.Poll(ctx); len(msgs) != 0 {
		t.Errorf("second poll = %+v", msgs)
	}

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	runCtx, stop := context.WithCancel(ctx)
	go func() {
		done <- p.Run(runCtx, func(m Message) {
			mu.Lock()
			got = append(got, m.Text)
			if len(got) == 2 {
				stop()
			}
			mu.Unlock()
		})
	}()

	c.PostGesture(ctx, "r1", Message{Text: "B", ParticipantType: Deaf, ParticipantName: "D"})
	c.PostGesture(ctx, "r1", Message{Text: "C", ParticipantType: Deaf, ParticipantName: "D"})

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-ctx.Done():
		t.Fatal("poller did not deliver messages")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("delivered = %v", got)
	}
}
