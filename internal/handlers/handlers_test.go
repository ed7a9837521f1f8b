package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/acs"
	"github.com/hearme/signbridge/internal/landmark"
	"github.com/hearme/signbridge/internal/predict"
	"github.com/hearme/signbridge/internal/relay"
	"github.com/hearme/signbridge/internal/rooms"
	"github.com/hearme/signbridge/internal/store"
)

type stubClassifier struct {
	best, classes, size int
}

func (c stubClassifier) Predict(features []float32) ([]float64, error) {
	s := make([]float64, c.classes)
	s[c.best] = 1
	return s, nil
}
func (c stubClassifier) Classes() int   { return c.classes }
func (c stubClassifier) InputSize() int { return c.size }

type stubProvider struct {
	mu    sync.Mutex
	users map[string]bool
	rooms map[string][]string
}

func (p *stubProvider) CreateUser(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "8:acs:" + uuid.NewString()
	p.users[id] = true
	return id, nil
}

func (p *stubProvider) IssueToken(ctx context.Context, userID string, scopes []string) (*acs.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.users[userID] {
		return nil, &acs.ResponseError{StatusCode: 404, Message: "identity not found"}
	}
	return &acs.AccessToken{Token: "tok-" + userID, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func (p *stubProvider) CreateRoom(ctx context.Context, validFrom, validUntil time.Time, userIDs []string) (*acs.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.rooms[id] = append([]string(nil), userIDs...)
	return &acs.Room{ID: id, ValidFrom: validFrom, ValidUntil: validUntil}, nil
}

func (p *stubProvider) ListParticipants(ctx context.Context, roomID string) ([]acs.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []acs.Participant
	for _, id := range p.rooms[roomID] {
		out = append(out, acs.Participant{ID: id, Role: acs.RolePresenter})
	}
	return out, nil
}

func (p *stubProvider) AddParticipants(ctx context.Context, roomID string, userIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range userIDs {
		for _, existing := range p.rooms[roomID] {
			if existing == id {
				return &acs.ResponseError{StatusCode: 409, Code: "Conflict", Message: "participant already exists"}
			}
		}
		p.rooms[roomID] = append(p.rooms[roomID], id)
	}
	return nil
}

type testServer struct {
	*httptest.Server
	transcripts *relay.MemoryQueue
}

// newTestServer wires a handler with in-memory services. A nil provider
// leaves the call-session endpoints unconfigured.
func newTestServer(t *testing.T, provider rooms.Provider, withModels bool) *testServer {
	t.Helper()

	var alphabet, word *predict.Model
	if withModels {
		alphabet = &predict.Model{ID: "a", Classifier: stubClassifier{best: 1, classes: 26, size: landmark.FrameSize}}
		word = &predict.Model{ID: "w", Classifier: stubClassifier{best: 0, classes: 2, size: landmark.SequenceSize}, Labels: []string{"hello", "thanks"}}
	}

	logger := zerolog.Nop()
	transcripts := relay.NewMemoryQueue("transcription", 3)
	svc := rooms.NewService(provider, store.NewMemoryStore(), time.Hour, logger)

	h := NewHandler(Deps{
		Transcripts: transcripts,
		Gestures:    relay.NewMemoryQueue("gesture", relay.DefaultCapacity),
		Predictor:   predict.NewService(alphabet, word, logger),
		Rooms:       svc,
		Logger:      logger,
	})

	srv := httptest.NewServer(routes(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, transcripts: transcripts}
}

func routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/predict", h.Predict)
	r.Get("/transcription/{room_id}", h.ListTranscriptions)
	r.Post("/transcription/{room_id}", h.PostTranscription)
	r.Get("/gesture/{room_id}", h.ListGestures)
	r.Post("/gesture/{room_id}", h.PostGesture)
	r.Post("/token", h.Token)
	r.Post("/api/azure/token", h.ReusableToken)
	r.Get("/my-user-id", h.MyUserID)
	r.Post("/room", h.CreateRoom)
	r.Get("/room/{room_id}", h.GetRoom)
	r.Post("/room/{room_id}/add-participant", h.AddParticipant)
	return r
}

func (s *testServer) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRelay_PostAndList(t *testing.T) {
	s := newTestServer(t, nil, false)

	for i, text := range []string{"one", "two"} {
		var resp RelayPostResponse
		body := `{"type":"final","text":"` + text + `","timestamp":1700000000000,"participantType":"hearing","participantName":"  Ana\tMaria  "}`
		if code := s.do(t, "POST", "/transcription/r1", body, &resp); code != http.StatusOK {
			t.Fatalf("post status = %d", code)
		}
		if resp.Status != "ok" || resp.MessageID != int64(i+1) {
			t.Errorf("post response = %+v", resp)
		}
	}

	var all []RelayMessage
	if code := s.do(t, "GET", "/transcription/r1", "", &all); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(all) != 2 || all[0].Text != "one" || all[1].ID != 2 {
		t.Fatalf("list = %+v", all)
	}
	if all[0].Type != "final" || all[0].ParticipantName != "  Ana\tMaria  " || all[0].ParticipantType != "hearing" {
		t.Errorf("message = %+v", all[0])
	}

	var after []RelayMessage
	s.do(t, "GET", "/transcription/r1?since=1", "", &after)
	if len(after) != 1 || after[0].ID != 2 {
		t.Errorf("since=1 = %+v", after)
	}

	var other []RelayMessage
	s.do(t, "GET", "/transcription/other", "", &other)
	if other == nil || len(other) != 0 {
		t.Errorf("unknown room = %#v, want empty array", other)
	}
}

func TestRelay_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	h := NewHandler(Deps{
		Transcripts: relay.NewRedisQueue(client, "transcription", relay.DefaultCapacity),
		Gestures:    relay.NewRedisQueue(client, "gesture", relay.DefaultCapacity),
		Predictor:   predict.NewService(nil, nil, logger),
		Rooms:       rooms.NewService(nil, store.NewMemoryStore(), time.Hour, logger),
		Logger:      logger,
	})
	srv := httptest.NewServer(routes(h))
	t.Cleanup(srv.Close)
	s := &testServer{Server: srv}

	body := `{"text":"A","timestamp":1,"participantType":"deaf","participantName":"D"}`
	if code := s.do(t, "POST", "/gesture/r1", body, nil); code != http.StatusOK {
		t.Fatalf("post before outage: status = %d", code)
	}

	mr.Close()

	var e map[string]string
	if code := s.do(t, "POST", "/gesture/r1", body, &e); code != http.StatusServiceUnavailable {
		t.Errorf("post status = %d, want 503", code)
	}
	if e["error"] != "failed to store message" {
		t.Errorf("post error = %q", e["error"])
	}
	if code := s.do(t, "GET", "/gesture/r1", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("list status = %d, want 503", code)
	}
	if code := s.do(t, "GET", "/transcription/r1?since=0", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("transcription list status = %d, want 503", code)
	}
}

func TestHandlers_BodyTooLarge(t *testing.T) {
	logger := zerolog.Nop()
	h := NewHandler(Deps{
		Transcripts: relay.NewMemoryQueue("transcription", relay.DefaultCapacity),
		Gestures:    relay.NewMemoryQueue("gesture", relay.DefaultCapacity),
		Predictor:   predict.NewService(nil, nil, logger),
		Rooms:       rooms.NewService(&stubProvider{users: map[string]bool{}, rooms: map[string][]string{}}, store.NewMemoryStore(), time.Hour, logger),
		Logger:      logger,
	})
	r := routes(h)
	limited := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, 64)
		r.ServeHTTP(w, req)
	})

	big := `{"text":"` + strings.Repeat("x", 200) + `","timestamp":1,"participantType":"deaf","participantName":"D"}`
	for _, path := range []string{"/gesture/r1", "/transcription/r1", "/predict", "/room", "/room/r1/add-participant", "/api/azure/token"} {
		// A multi-reader body has no declared length, like a chunked upload.
		req := httptest.NewRequest("POST", path, io.MultiReader(strings.NewReader(big)))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("%s: status = %d, want 413: %s", path, rec.Code, rec.Body.String())
		}
	}

	// Small malformed bodies are still a client error.
	req := httptest.NewRequest("POST", "/gesture/r1", io.MultiReader(strings.NewReader("{")))
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed: status = %d", rec.Code)
	}
}

func TestRelay_GesturesAreSeparate(t *testing.T) {
	s := newTestServer(t, nil, false)

	body := `{"text":"HELLO","timestamp":5,"participantType":"deaf","participantName":"Bo"}`
	var resp RelayPostResponse
	if code := s.do(t, "POST", "/gesture/r1", body, &resp); code != http.StatusOK || resp.MessageID != 1 {
		t.Fatalf("post gesture = %d %+v", code, resp)
	}

	var gestures []RelayMessage
	s.do(t, "GET", "/gesture/r1", "", &gestures)
	if len(gestures) != 1 || gestures[0].Type != "" || gestures[0].ParticipantType != "deaf" {
		t.Errorf("gestures = %+v", gestures)
	}

	var transcripts []RelayMessage
	s.do(t, "GET", "/transcription/r1", "", &transcripts)
	if len(transcripts) != 0 {
		t.Errorf("transcriptions = %+v", transcripts)
	}
}

func TestRelay_Truncates(t *testing.T) {
	s := newTestServer(t, nil, false)
	for i := 0; i < 5; i++ {
		s.do(t, "POST", "/transcription/r1", `{"type":"partial","text":"x","timestamp":1,"participantType":"hearing","participantName":"A"}`, nil)
	}

	var all []RelayMessage
	s.do(t, "GET", "/transcription/r1", "", &all)
	if len(all) != 3 || all[0].ID != 3 || all[2].ID != 5 {
		t.Errorf("after truncation = %+v", all)
	}
	if s.transcripts.Len("r1") != 3 {
		t.Errorf("stored = %d", s.transcripts.Len("r1"))
	}
}

func TestRelay_Validation(t *testing.T) {
	s := newTestServer(t, nil, false)

	tests := []struct {
		name, path, body, want string
	}{
		{"bad json", "/transcription/r1", `{`, "invalid JSON body"},
		{"missing type", "/transcription/r1", `{"text":"a","timestamp":1,"participantType":"hearing","participantName":"A"}`, "type is required"},
		{"bad type", "/transcription/r1", `{"type":"draft","text":"a","timestamp":1,"participantType":"hearing","participantName":"A"}`, "type must be 'partial' or 'final'"},
		{"missing text", "/gesture/r1", `{"timestamp":1,"participantType":"deaf","participantName":"A"}`, "text is required"},
		{"missing timestamp", "/gesture/r1", `{"text":"a","participantType":"deaf","participantName":"A"}`, "timestamp is required"},
		{"missing name", "/gesture/r1", `{"text":"a","timestamp":1,"participantType":"deaf"}`, "participantName is required"},
		{"bad role", "/gesture/r1", `{"text":"a","timestamp":1,"participantType":"robot","participantName":"A"}`, "participantType must be 'hearing' or 'deaf'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp map[string]string
			if code := s.do(t, "POST", tt.path, tt.body, &resp); code != http.StatusBadRequest {
				t.Fatalf("status = %d", code)
			}
			if resp["error"] != tt.want {
				t.Errorf("error = %q, want %q", resp["error"], tt.want)
			}
		})
	}

	var resp map[string]string
	if code := s.do(t, "GET", "/transcription/r1?since=abc", "", &resp); code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", code)
	}
}

func TestPredict(t *testing.T) {
	s := newTestServer(t, nil, true)

	alpha, _ := json.Marshal(PredictRequest{Mode: "alphabet", Landmarks: make([]float32, landmark.FrameSize)})
	var res predict.Result
	if code := s.do(t, "POST", "/predict", string(alpha), &res); code != http.StatusOK {
		t.Fatalf("alphabet status = %d", code)
	}
	if res.Prediction != 1 || res.Label != "B" {
		t.Errorf("alphabet = %+v", res)
	}

	word, _ := json.Marshal(PredictRequest{Mode: "word", Landmarks: make([]float32, landmark.SequenceSize)})
	s.do(t, "POST", "/predict", string(word), &res)
	if res.Prediction != 0 || res.Label != "hello" {
		t.Errorf("word = %+v", res)
	}
}

func TestPredict_Errors(t *testing.T) {
	loaded := newTestServer(t, nil, true)
	empty := newTestServer(t, nil, false)

	short, _ := json.Marshal(PredictRequest{Mode: "word", Landmarks: make([]float32, 63)})
	tests := []struct {
		name   string
		srv    *testServer
		body   string
		status int
		want   string
	}{
		{"bad json", loaded, `nope`, http.StatusBadRequest, "invalid JSON body"},
		{"missing mode", loaded, `{"landmarks":[1]}`, http.StatusBadRequest, "mode is required"},
		{"unknown mode", loaded, `{"mode":"emoji","landmarks":[1]}`, http.StatusBadRequest, ""},
		{"no landmarks", loaded, `{"mode":"alphabet","landmarks":[]}`, http.StatusBadRequest, ""},
		{"wrong size", loaded, string(short), http.StatusBadRequest, "word expects 1890 values (30×63), got 63"},
		{"not loaded", empty, string(short), http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp map[string]string
			if code := tt.srv.do(t, "POST", "/predict", tt.body, &resp); code != tt.status {
				t.Fatalf("status = %d, want %d", code, tt.status)
			}
			if resp["error"] == "" {
				t.Error("missing error message")
			}
			if tt.want != "" && resp["error"] != tt.want {
				t.Errorf("error = %q, want %q", resp["error"], tt.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	p := &stubProvider{users: map[string]bool{}, rooms: map[string][]string{}}
	s := newTestServer(t, p, false)

	var tok TokenResponse
	if code := s.do(t, "POST", "/token", "", &tok); code != http.StatusOK {
		t.Fatalf("token status = %d", code)
	}
	if tok.User.CommunicationUserID == "" || tok.Token != "tok-"+tok.User.CommunicationUserID {
		t.Errorf("token = %+v", tok)
	}

	var reused ReusableTokenResponse
	s.do(t, "POST", "/api/azure/token", `{"userId":"`+tok.User.CommunicationUserID+`"}`, &reused)
	if !reused.Reused || reused.UserID != tok.User.CommunicationUserID {
		t.Errorf("reuse = %+v", reused)
	}

	var fresh ReusableTokenResponse
	s.do(t, "POST", "/api/azure/token", `{"userId":"8:acs:gone"}`, &fresh)
	if fresh.Reused || fresh.UserID == "8:acs:gone" || fresh.UserID == "" {
		t.Errorf("unknown user = %+v", fresh)
	}

	var malformed ReusableTokenResponse
	if code := s.do(t, "POST", "/api/azure/token", `{`, &malformed); code != http.StatusOK || malformed.Token == "" {
		t.Errorf("malformed body = %d %+v", code, malformed)
	}

	var me UserIDResponse
	s.do(t, "GET", "/my-user-id", "", &me)
	if !strings.HasPrefix(me.CommunicationUserID, "8:acs:") {
		t.Errorf("my-user-id = %+v", me)
	}
}

func TestRooms(t *testing.T) {
	p := &stubProvider{users: map[string]bool{}, rooms: map[string][]string{}}
	s := newTestServer(t, p, false)

	var created RoomResponse
	if code := s.do(t, "POST", "/room", `{"roomId":"demo"}`, &created); code != http.StatusOK {
		t.Fatalf("create status = %d", code)
	}
	if created.RoomID != "demo" || created.AzureRoomID == "" || created.GroupCallID != created.AzureRoomID {
		t.Errorf("created = %+v", created)
	}
	if len(created.Participants) != 1 || created.Participants[0].Role != "Presenter" {
		t.Errorf("participants = %+v", created.Participants)
	}

	var got RoomResponse
	s.do(t, "GET", "/room/demo", "", &got)
	if got.AzureRoomID != created.AzureRoomID || got.Exists == nil || !*got.Exists || got.Created {
		t.Errorf("get = %+v", got)
	}

	var auto RoomResponse
	s.do(t, "GET", "/room/fresh", "", &auto)
	if auto.Exists == nil || *auto.Exists || !auto.Created || auto.AzureRoomID == "" {
		t.Errorf("auto-created = %+v", auto)
	}

	var added AddParticipantResponse
	s.do(t, "POST", "/room/demo/add-participant", `{"communicationUserId":"8:acs:bob"}`, &added)
	if added.Message != "Participant added successfully" || added.Participant.CommunicationUserID != "8:acs:bob" {
		t.Errorf("add = %+v", added)
	}
	s.do(t, "POST", "/room/demo/add-participant", `{"communicationUserId":"8:acs:bob"}`, &added)
	if added.Message != "Participant already in room" {
		t.Errorf("second add = %+v", added)
	}
}

func TestRooms_Errors(t *testing.T) {
	p := &stubProvider{users: map[string]bool{}, rooms: map[string][]string{}}
	s := newTestServer(t, p, false)
	unconfigured := newTestServer(t, nil, false)

	tests := []struct {
		name         string
		srv          *testServer
		method, path string
		body         string
		status       int
	}{
		{"missing room id", s, "POST", "/room", `{}`, http.StatusBadRequest},
		{"bad json", s, "POST", "/room", `{`, http.StatusBadRequest},
		{"add to unknown room", s, "POST", "/room/nope/add-participant", `{"communicationUserId":"8:acs:x"}`, http.StatusNotFound},
		{"token unconfigured", unconfigured, "POST", "/token", "", http.StatusServiceUnavailable},
		{"room unconfigured", unconfigured, "POST", "/room", `{"roomId":"a"}`, http.StatusServiceUnavailable},
		{"get unconfigured", unconfigured, "GET", "/room/a", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp map[string]any
			if code := tt.srv.do(t, tt.method, tt.path, tt.body, &resp); code != tt.status {
				t.Errorf("status = %d, want %d (%v)", code, tt.status, resp)
			}
		})
	}

	var resp map[string]string
	s.do(t, "POST", "/room", `{"roomId":"demo"}`, nil)
	if code := s.do(t, "POST", "/room/demo/add-participant", `{}`, &resp); code != http.StatusBadRequest {
		t.Errorf("missing user status = %d", code)
	}
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, nil, true)

	var root RootResponse
	s.do(t, "GET", "/", "", &root)
	if root.Status != "ok" || !root.ModelsLoaded.Alphabet || !root.ModelsLoaded.Word || root.AzureCommunicationConfigured {
		t.Errorf("root = %+v", root)
	}

	var health HealthResponse
	if code := s.do(t, "GET", "/health", "", &health); code != http.StatusOK {
		t.Fatalf("health status = %d (%+v)", code, health)
	}
	if health.Status != "healthy" || health.Checks["redis"].Status != "skip" || health.Checks["provider"].Status != "skip" {
		t.Errorf("health = %+v", health)
	}

	degraded := newTestServer(t, nil, false)
	if code := degraded.do(t, "GET", "/health", "", &health); code != http.StatusServiceUnavailable {
		t.Errorf("no models status = %d", code)
	}
	if health.Checks["word_model"].Status != "fail" {
		t.Errorf("word_model = %+v", health.Checks["word_model"])
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil, true)
	s.do(t, "POST", "/transcription/r1", `{"type":"final","text":"a","timestamp":1,"participantType":"hearing","participantName":"A"}`, nil)
	s.do(t, "POST", "/transcription/r2", `{"type":"final","text":"b","timestamp":1,"participantType":"hearing","participantName":"A"}`, nil)

	var stats StatsResponse
	if code := s.do(t, "GET", "/stats", "", &stats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.Transcriptions.Rooms != 2 || stats.Transcriptions.Messages != 2 || stats.Gestures.Messages != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.Models.Alphabet.Loaded {
		t.Errorf("models = %+v", stats.Models)
	}
}

func TestValidRoomID(t *testing.T) {
	for id, want := range map[string]bool{
		"demo":                   true,
		"room-42_x":              true,
		"":                       false,
		"has space":              false,
		strings.Repeat("a", 129): false,
	} {
		if got := validRoomID(id); got != want {
			t.Errorf("validRoomID(%q) = %v", id, got)
		}
	}
}
