package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/realtime"
)

// Cross-origin browsers are admitted; the bearer token is the actual gate.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// RegisterWS wires the realtime websocket endpoint. Browsers cannot set
// headers on websocket dials, so the bearer token is also accepted as a
// "token" query parameter.
func RegisterWS(e *echo.Echo, auth Authenticator, registry *realtime.Registry, hub *realtime.Hub, logger *log.Logger, idleTimeout time.Duration) {
	e.GET("/ws", func(c echo.Context) error {
		userID, err := wsUserID(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade already wrote the handshake failure response.
			logger.WithFields(log.Fields{"user": userID, "err": err}).Debug("websocket upgrade failed")
			return nil
		}

		client := realtime.NewClient(conn, userID, registry, hub, logger, idleTimeout)
		client.Serve()
		return nil
	})
}

func wsUserID(c echo.Context, auth Authenticator) (string, error) {
	if h := c.Request().Header.Get("Authorization"); h != "" {
		return auth.UserIDFromAuthHeader(h)
	}
	return auth.UserIDFromToken(c.QueryParam("token"))
}
