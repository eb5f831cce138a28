package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cognivia/exam-engine/internal/session"
	ws "github.com/cognivia/exam-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams attempt events: clock ticks, time warnings, forced
// transitions and finalization.
type WSHandler struct {
	registry *session.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *session.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket and pushes the attempt's event stream until the
// attempt finalizes or the client disconnects.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, err := strconv.ParseInt(c.Param("attempt_id"), 10, 64)
	if err != nil || attemptID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	ctrl, err := h.registry.Get(attemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int64("attempt_id", attemptID).Logger()
	wsLog.Info().Msg("Candidate connected")

	st := ctrl.State()
	ws.WriteTyped(conn, ws.HelloResponse{
		Event:              ws.EventHello,
		AttemptID:          attemptID,
		TestRemainingMS:    st.TestRemainingMS,
		SectionRemainingMS: st.SectionRemainingMS,
	})

	// Reader goroutine: answers pings and notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			switch msg.Action {
			case ws.ActionPing:
				ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			default:
				ws.WriteError(conn, "unknown action: "+string(msg.Action))
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-ctrl.Events():
			if !ok {
				return
			}
			if err := ws.WriteTyped(conn, ev); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, dropping stream")
				return
			}
			if ev.Type == session.EventFinalized {
				wsLog.Info().Msg("Attempt finalized, closing stream")
				return
			}
		}
	}
}
