// Package adminapi exposes the operator HTTP API: campaign management,
// shipping reports and connection pairing.
package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/zaptalk/zapcampaigns/internal/app"
	"github.com/zaptalk/zapcampaigns/internal/whatsapp"
	"go.uber.org/zap"
)

// Server is the admin HTTP server.
type Server struct {
	echo *echo.Echo
	app  app.AppContext
	wa   *whatsapp.Service
}

func NewServer(a app.AppContext, wa *whatsapp.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, app: a, wa: wa}
	s.registerCampaignRoutes()
	s.registerConnectionRoutes()
	return s
}

// Start blocks serving the API on the given address.
func (s *Server) Start(addr string) error {
	zap.L().Info("admin api listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// ListResponse is the paged list envelope.
type ListResponse struct {
	TotalCount int64       `json:"totalCount"`
	Pos        int         `json:"pos"`
	Data       interface{} `json:"data"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"code": 0, "data": data})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":    code,
		"message": msg,
		"detail":  detail,
	})
}
