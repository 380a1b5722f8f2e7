// Package server exposes the relay over HTTP: a health surface and the
// per-client WebSocket endpoint the browser connects to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	bridgex "github.com/mediminds/voicerelay/relay/bridge"
	contractx "github.com/mediminds/voicerelay/relay/contract"
)

type Config struct {
	Listen       string `envconfig:"LISTEN" split_words:"true" default:":8000"`
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" split_words:"true" default:"http://localhost:5173,http://localhost:3000"`
}

// Server routes HTTP traffic into the bridge manager.
type Server struct {
	cfg      Config
	manager  *bridgex.Manager
	echo     *echo.Echo
	origins  map[string]struct{}
	upgrader websocket.Upgrader
}

func New(cfg Config, manager *bridgex.Manager) *Server {
	origins := make(map[string]struct{})
	var originList []string
	for _, origin := range strings.Split(cfg.AllowOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		origins[origin] = struct{}{}
		originList = append(originList, origin)
	}

	s := &Server{cfg: cfg, manager: manager, origins: origins}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1 << 14,
		WriteBufferSize: 1 << 14,
		CheckOrigin:     s.checkOrigin,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: originList,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.GET("/ws/:client_id", s.handleWebSocket)
	s.echo = e
	return s
}

// Handler exposes the route tree for httptest-style servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	log.Info().Str("listen", s.cfg.Listen).Msg("server listening")
	err := s.echo.Start(s.cfg.Listen)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// checkOrigin admits configured origins plus origin-less connections
// (native clients and test dialers send no Origin header).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "voicerelay",
		"status":  "running",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	clientID := c.Param("client_id")
	if strings.TrimSpace(clientID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client id is required")
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the handshake error response.
		log.Debug().Err(err).Str("client_id", clientID).Msg("websocket upgrade failed")
		return nil
	}

	ctx := c.Request().Context()
	s.manager.Connect(ctx, clientID, ws)
	defer s.manager.Disconnect(clientID)

	log.Info().Str("client_id", clientID).Msg("client connected")
	s.readLoop(ctx, clientID, ws)
	log.Info().Str("client_id", clientID).Msg("client gone")
	return nil
}

func (s *Server) readLoop(ctx context.Context, clientID string, ws *websocket.Conn) {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				log.Debug().Err(err).Str("client_id", clientID).Msg("client closed connection")
			} else {
				log.Warn().Err(err).Str("client_id", clientID).Msg("client read failed")
			}
			return
		}

		var cmd contractx.ClientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			log.Warn().Err(err).Str("client_id", clientID).Msg("dropping undecodable client frame")
			continue
		}
		if err := s.manager.HandleClientCommand(ctx, clientID, cmd); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn().Err(err).
				Str("client_id", clientID).
				Str("command", cmd.Type).
				Msg("client command failed")
		}
	}
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, contractx.ErrTransportClosed)
}
