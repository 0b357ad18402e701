package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/middleware"
	ws "github.com/siddharthareddy0/quiz-hosting/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// MonitorHandler relays live integrity events for an exam to admin
// WebSocket clients. Events originate from the attempt service via Redis
// PubSub, so every server instance sees every event.
type MonitorHandler struct {
	rdb      *redis.Client
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		log:      log.With().Str("component", "monitor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// MonitorStream godoc
// WS /ws/v1/admin/exams/:exam_id/monitor
// Upgrades to WebSocket and relays the exam's monitor channel.
func (h *MonitorHandler) MonitorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("admin_id", claims.UserID.String()).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Monitor connected")

	ctx := c.Request.Context()
	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()

	// Reader goroutine: drains client frames so pings are answered and a
	// closed connection is noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Request context done")
			return
		case <-done:
			wsLog.Debug().Msg("Monitor disconnected")
			return
		case <-ping.C:
			if err := ws.WriteTyped(conn, ws.MonitorEvent{Event: ws.EventPing, ExamID: examID, At: time.Now()}); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				wsLog.Warn().Msg("Monitor channel closed")
				return
			}
			var event ws.MonitorEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				wsLog.Error().Err(err).Msg("Malformed monitor event")
				continue
			}
			if err := ws.WriteTyped(conn, event); err != nil {
				wsLog.Debug().Err(err).Msg("Relay write failed")
				return
			}
		}
	}
}
