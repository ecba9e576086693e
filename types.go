package amigos

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError is an error body returned by the backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return e.Msg
}

// Message kinds as the backend spells them.
const (
	KindText  = "texto"
	KindImage = "imagen"
)

// Message is one chat message, historical or live. JSON field names are the
// backend's wire names. A message is never mutated after creation.
type Message struct {
	Sender    string `json:"remitente"`
	Recipient string `json:"receptor"`
	Body      string `json:"mensaje"` // literal text, or an image URL for KindImage
	Kind      string `json:"tipo"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// User is a profile as returned by the backend: a match, a candidate, or the
// authenticated account itself.
type User struct {
	ID          string   `json:"_id"`
	Name        string   `json:"nombre"`
	Email       string   `json:"email,omitempty"`
	AvatarURL   string   `json:"imagen,omitempty"`
	Gallery     []string `json:"galeria,omitempty"`
	Description string   `json:"descripcion,omitempty"`
	Age         int      `json:"edad,omitempty"`
	Gender      string   `json:"genero,omitempty"`
	Preference  string   `json:"preferencia,omitempty"`
}

// Peer identifies the other party of a 1:1 conversation. Immutable for the
// conversation's lifetime.
type Peer struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// PeerFromUser builds a Peer from a backend profile.
func PeerFromUser(u User) Peer {
	return Peer{ID: u.ID, DisplayName: u.Name, AvatarURL: u.AvatarURL}
}

// Request is a pending friend request. The length of the list returned by
// GET /app/solicitudes is the authoritative unseen count used to reseed the
// notification counter.
type Request struct {
	ID             string `json:"_id"`
	Name           string `json:"nombre"`
	AvatarURL      string `json:"imagen,omitempty"`
	InitialMessage string `json:"mensajeInicial,omitempty"`
}

// Request response actions.
const (
	ActionAccept = "aceptar"
	ActionReject = "rechazar"
)

// ProfileUpdate is the body of PUT /auth/perfil. Empty fields are omitted
// from the wire and left untouched by the backend.
type ProfileUpdate struct {
	Name        string   `json:"nombre,omitempty"`
	Age         int      `json:"edad,omitempty"`
	Description string   `json:"descripcion,omitempty"`
	Gender      string   `json:"genero,omitempty"`
	Preference  string   `json:"preferencia,omitempty"`
	Gallery     []string `json:"galeria,omitempty"`
}

// ProfileResult is the body of a successful PUT /auth/perfil.
type ProfileResult struct {
	User User `json:"usuario"`
}

// LoginResult is the body of a successful POST /auth/login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"usuario"`
}

// UploadResult is the body of a successful POST /upload.
type UploadResult struct {
	URL string `json:"url"`
}

// ============================================================================
// Realtime wire format
// ============================================================================

// Realtime event names. The client emits EventJoin and EventSendMessage; the
// server pushes EventNewMessage and EventNewNotification.
const (
	EventJoin            = "entrar_chat"
	EventSendMessage     = "enviar_mensaje"
	EventNewMessage      = "nuevo_mensaje"
	EventNewNotification = "nueva_notificacion"
)

// Envelope is the wire format for every realtime event in both directions.
// ID is client-generated on outbound commands and absent on inbound events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// JoinPayload identifies the local user to the server's room logic.
type JoinPayload struct {
	UserID string `json:"userId"`
}
