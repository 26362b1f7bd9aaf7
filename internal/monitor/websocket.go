package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/akoval/verax/internal/actuate"
	"github.com/akoval/verax/internal/factcheck"
	"github.com/akoval/verax/internal/safety"
	"github.com/akoval/verax/internal/store"
	"github.com/akoval/verax/internal/transcribe"
	"github.com/coder/websocket"
)

// WebSocketHandler accepts monitoring connections and runs one orchestrator
// per connection.
type WebSocketHandler struct {
	ledger        store.Ledger
	governor      *safety.Governor
	checker       factcheck.Checker
	actuator      actuate.Port
	stt           transcribe.Port
	speaker       *transcribe.Speaker
	cfg           Config
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler. speaker may be nil.
func NewWebSocketHandler(ledger store.Ledger, governor *safety.Governor,
	checker factcheck.Checker, actuator actuate.Port, stt transcribe.Port,
	speaker *transcribe.Speaker, cfg Config, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		ledger:        ledger,
		governor:      governor,
		checker:       checker,
		actuator:      actuator,
		stt:           stt,
		speaker:       speaker,
		cfg:           cfg,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsNotifier adapts a websocket connection to the Notifier interface.
// Writes are serialized: evaluation goroutines notify concurrently.
type wsNotifier struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (n *wsNotifier) Notify(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal server message", "error", err)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("websocket write error", "error", err)
	}
}

func (n *wsNotifier) NotifyBinary(data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.Write(context.Background(), websocket.MessageBinary, data); err != nil {
		slog.Debug("websocket binary write error", "error", err)
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("monitor connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr)
		}
	}()
	// Audio frames from the browser capture can exceed the default limit.
	ws.SetReadLimit(1 << 20)

	notifier := &wsNotifier{conn: ws}
	orch := New(h.ledger, h.governor, h.checker, h.actuator, h.stt, h.speaker, notifier, h.cfg)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Connection teardown closes any open session and lets in-flight
	// evaluations finish recording.
	defer orch.Close(context.Background())

	orch.NotifySafetyStatus(ctx)

	h.readLoop(ctx, ws, orch)
	slog.Info("monitor connection ended", "ip", r.RemoteAddr)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, orch *Orchestrator) {
	for {
		typ, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("websocket closed by client")
			} else if ctx.Err() == nil {
				slog.Warn("websocket read error", "error", err)
			}
			return
		}

		// Binary frames are raw audio; everything else is a JSON command.
		if typ == websocket.MessageBinary {
			orch.SendAudio(ctx, message)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			orch.notifyError("invalid message format, expected JSON")
			continue
		}
		h.dispatch(ctx, orch, msg)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, orch *Orchestrator, msg clientMessage) {
	if msg.BaseIntensity != 0 {
		orch.SetBaseIntensity(msg.BaseIntensity)
	}
	if msg.SourceFilter != "" && msg.Type != cmdCheckClaim {
		if err := orch.SetSourceFilter(msg.SourceFilter); err != nil {
			orch.notifyError(err.Error())
			return
		}
	}

	switch msg.Type {
	case cmdStartMonitoring:
		orch.StartMonitoring(ctx)
	case cmdStopMonitoring:
		orch.StopMonitoring(ctx)
	case cmdEmergencyStop:
		orch.EmergencyStop(ctx)
	case cmdCheckClaim:
		orch.CheckClaim(ctx, msg.Text, msg.SourceFilter)
	default:
		orch.notifyError("unknown message type: " + msg.Type)
	}
}
