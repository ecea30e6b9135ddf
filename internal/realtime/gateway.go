package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"AquaWallet/internal/auth"
	"AquaWallet/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway upgrades authenticated requests to websocket sessions.
type Gateway struct {
	hub      *Hub
	verifier auth.Verifier
	marker   ReadMarker
	upgrader websocket.Upgrader
	onFail   func(w http.ResponseWriter, err error)
	logger   *zap.Logger
	ctx      context.Context
}

// NewGateway builds the /ws handler. allowOrigin decides cross-origin
// handshakes; nil accepts every origin. ctx bounds the work started by
// client frames and is cancelled on shutdown.
func NewGateway(ctx context.Context, hub *Hub, verifier auth.Verifier, marker ReadMarker, allowOrigin func(origin string) bool, onFail func(w http.ResponseWriter, err error), logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		marker:   marker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowOrigin == nil || origin == "" || allowOrigin(origin)
			},
		},
		onFail: onFail,
		logger: logger.Named("gateway"),
		ctx:    ctx,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := g.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		g.logger.Info("websocket authentication failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		g.onFail(w, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    g.hub,
		logger: g.logger,
	}

	// The greeting is queued before registration so it is always the first frame.
	greeting, _ := json.Marshal(model.NewEvent(model.EventConnected, map[string]string{
		"message": "Successfully connected to notification server",
		"userId":  userID,
	}))
	c.send <- greeting
	g.hub.register(c)

	go c.writePump()
	go c.readPump(g.ctx, g.marker)
}
