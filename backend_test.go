package amigos_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	amigos "github.com/Rapa0/amigos-go"
	"nhooyr.io/websocket"
)

// fakeBackend is an in-process stand-in for the AmigosApp backend: the REST
// endpoints under /api plus the realtime channel at /ws.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu             sync.Mutex
	history        map[string][]amigos.Message
	requests       []amigos.Request
	historyStatus  int           // non-zero forces GET /app/mensajes to fail
	historyDelay   time.Duration // holds the GET /app/mensajes response open
	requestsStatus int           // non-zero forces GET /app/solicitudes to fail
	uploadStatus   int           // non-zero forces POST /upload to fail
	uploadURL      string
	uploadField    string // multipart field name seen on the last upload
	authHeaders    []string

	restCalls []restCall

	joins    chan amigos.JoinPayload
	commands chan amigos.Envelope

	connMu sync.Mutex
	conns  []*websocket.Conn
}

// restCall is one recorded REST request, body decoded as generic JSON.
type restCall struct {
	method string
	path   string
	body   map[string]interface{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:         t,
		history:   make(map[string][]amigos.Message),
		uploadURL: "https://cdn.example.com/chat/img-1.jpg",
		joins:     make(chan amigos.JoinPayload, 8),
		commands:  make(chan amigos.Envelope, 32),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", fb.handleWS)
	mux.HandleFunc("/api/auth/login", fb.handleLogin)
	mux.HandleFunc("/api/app/solicitudes", fb.handleRequests)
	mux.HandleFunc("/api/app/matches", fb.handleMatches)
	mux.HandleFunc("/api/app/mensajes/", fb.handleMessages)
	mux.HandleFunc("/api/app/eliminarmatch", fb.handleRecorded)
	mux.HandleFunc("/api/auth/verificar", fb.handleRecorded)
	mux.HandleFunc("/api/auth/olvide-password", fb.handleRecorded)
	mux.HandleFunc("/api/auth/comprobar-token", fb.handleRecorded)
	mux.HandleFunc("/api/auth/nuevo-password", fb.handleRecorded)
	mux.HandleFunc("/api/auth/perfil", fb.handleProfile)
	mux.HandleFunc("/api/upload", fb.handleUpload)

	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			w.Header().Set("Content-Type", "application/json")
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) client() *amigos.Client {
	return amigos.NewClient("test-token", amigos.WithBaseURL(fb.srv.URL+"/api"))
}

func (fb *fakeBackend) session(userID string) *amigos.Session {
	s := amigos.NewSession(fb.client(), userID, &amigos.RealtimeConfig{
		HeartbeatInterval: time.Minute,
	})
	fb.t.Cleanup(func() { _ = s.Close() })
	return s
}

// push broadcasts a server event to every live connection.
func (fb *fakeBackend) push(event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		fb.t.Fatalf("marshal push payload: %v", err)
	}
	data, _ := json.Marshal(amigos.Envelope{Type: event, Payload: body})

	fb.connMu.Lock()
	conns := append([]*websocket.Conn{}, fb.conns...)
	fb.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range conns {
		_ = c.Write(ctx, websocket.MessageText, data)
	}
}

// awaitJoin blocks until a client joins the channel.
func (fb *fakeBackend) awaitJoin() amigos.JoinPayload {
	fb.t.Helper()
	select {
	case j := <-fb.joins:
		return j
	case <-time.After(5 * time.Second):
		fb.t.Fatal("timed out waiting for join handshake")
		return amigos.JoinPayload{}
	}
}

// awaitCommand blocks until the server receives an enviar_mensaje envelope
// and returns the decoded message.
func (fb *fakeBackend) awaitCommand() (amigos.Envelope, amigos.Message) {
	fb.t.Helper()
	select {
	case env := <-fb.commands:
		var m amigos.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			fb.t.Fatalf("decode command payload: %v", err)
		}
		return env, m
	case <-time.After(5 * time.Second):
		fb.t.Fatal("timed out waiting for command")
		return amigos.Envelope{}, amigos.Message{}
	}
}

// kickAll closes every live connection from the server side, simulating a
// network drop.
func (fb *fakeBackend) kickAll() {
	fb.connMu.Lock()
	conns := append([]*websocket.Conn{}, fb.conns...)
	fb.connMu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "kicked")
	}
}

// liveConns reports how many connections the server currently holds open.
func (fb *fakeBackend) liveConns() int {
	fb.connMu.Lock()
	defer fb.connMu.Unlock()
	return len(fb.conns)
}

// expectNoCommand asserts that nothing is emitted within the window.
func (fb *fakeBackend) expectNoCommand(window time.Duration) {
	fb.t.Helper()
	select {
	case env := <-fb.commands:
		fb.t.Fatalf("unexpected command emitted: %s %s", env.Type, string(env.Payload))
	case <-time.After(window):
	}
}

// ----------------------------------------------------------------------------
// Handlers
// ----------------------------------------------------------------------------

func (fb *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	fb.connMu.Lock()
	fb.conns = append(fb.conns, c)
	fb.connMu.Unlock()
	defer func() {
		fb.connMu.Lock()
		for i, cc := range fb.conns {
			if cc == c {
				fb.conns = append(fb.conns[:i], fb.conns[i+1:]...)
				break
			}
		}
		fb.connMu.Unlock()
	}()

	ctx := context.Background()
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var env amigos.Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		switch env.Type {
		case amigos.EventJoin:
			var j amigos.JoinPayload
			if json.Unmarshal(env.Payload, &j) == nil {
				fb.joins <- j
			}
		case amigos.EventSendMessage:
			fb.commands <- env
		}
	}
}

func (fb *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Credenciales incorrectas"})
		return
	}
	_ = json.NewEncoder(w).Encode(amigos.LoginResult{
		Token: "fresh-token",
		User:  amigos.User{ID: "user-a", Name: "Ana", Email: body.Email},
	})
}

func (fb *fakeBackend) handleRequests(w http.ResponseWriter, r *http.Request) {
	fb.recordAuth(r)
	fb.mu.Lock()
	status := fb.requestsStatus
	reqs := fb.requests
	fb.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Error del servidor"})
		return
	}
	if reqs == nil {
		reqs = []amigos.Request{}
	}
	_ = json.NewEncoder(w).Encode(reqs)
}

func (fb *fakeBackend) handleMatches(w http.ResponseWriter, r *http.Request) {
	fb.recordAuth(r)
	_ = json.NewEncoder(w).Encode([]amigos.User{
		{ID: "user-b", Name: "Bruno", AvatarURL: "https://cdn.example.com/b.jpg"},
	})
}

func (fb *fakeBackend) handleMessages(w http.ResponseWriter, r *http.Request) {
	fb.recordAuth(r)
	fb.mu.Lock()
	status := fb.historyStatus
	delay := fb.historyDelay
	peer := strings.TrimPrefix(r.URL.Path, "/api/app/mensajes/")
	msgs := fb.history[peer]
	fb.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Error del servidor"})
		return
	}
	if msgs == nil {
		msgs = []amigos.Message{}
	}
	_ = json.NewEncoder(w).Encode(msgs)
}

func (fb *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	fb.recordAuth(r)
	fb.mu.Lock()
	status := fb.uploadStatus
	fb.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "No se pudo subir la imagen"})
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "multipart requerido"})
		return
	}
	field := ""
	for name := range r.MultipartForm.File {
		field = name
	}
	fb.mu.Lock()
	fb.uploadField = field
	url := fb.uploadURL
	fb.mu.Unlock()

	_ = json.NewEncoder(w).Encode(amigos.UploadResult{URL: url})
}

// handleRecorded accepts any body, records the call, and answers {"msg":"ok"}.
func (fb *fakeBackend) handleRecorded(w http.ResponseWriter, r *http.Request) {
	fb.recordAuth(r)
	fb.recordCall(r)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": "ok"})
}

func (fb *fakeBackend) handleProfile(w http.ResponseWriter, r *http.Request) {
	fb.recordAuth(r)
	call := fb.recordCall(r)

	switch r.Method {
	case http.MethodPut:
		user := amigos.User{ID: "user-a", Name: "Ana"}
		if name, ok := call.body["nombre"].(string); ok && name != "" {
			user.Name = name
		}
		if age, ok := call.body["edad"].(float64); ok {
			user.Age = int(age)
		}
		if desc, ok := call.body["descripcion"].(string); ok {
			user.Description = desc
		}
		_ = json.NewEncoder(w).Encode(amigos.ProfileResult{User: user})
	case http.MethodDelete:
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Cuenta eliminada"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fb *fakeBackend) recordCall(r *http.Request) restCall {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	call := restCall{method: r.Method, path: r.URL.Path, body: body}
	fb.mu.Lock()
	fb.restCalls = append(fb.restCalls, call)
	fb.mu.Unlock()
	return call
}

func (fb *fakeBackend) lastCall() restCall {
	fb.t.Helper()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.restCalls) == 0 {
		fb.t.Fatal("no recorded REST calls")
	}
	return fb.restCalls[len(fb.restCalls)-1]
}

func (fb *fakeBackend) recordAuth(r *http.Request) {
	fb.mu.Lock()
	fb.authHeaders = append(fb.authHeaders, r.Header.Get("Authorization"))
	fb.mu.Unlock()
}
