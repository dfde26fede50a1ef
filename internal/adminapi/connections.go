package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/zaptalk/zapcampaigns/internal/domain"
)

func (s *Server) registerConnectionRoutes() {
	s.echo.GET("/api/v1/connections", s.listConnections)
	s.echo.POST("/api/v1/connections/:id/pair", s.pairConnection)
	s.echo.GET("/api/v1/connections/:id/qr", s.connectionQR)
	s.echo.POST("/api/v1/connections/:id/disconnect", s.disconnectConnection)
}

func (s *Server) listConnections(c echo.Context) error {
	q := s.app.DB().Model(&domain.Whatsapp{})
	if tenant := c.QueryParam("tenant_id"); tenant != "" {
		q = q.Where("tenant_id = ?", tenant)
	}
	var list []domain.Whatsapp
	if err := q.Order("id asc").Find(&list).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to list connections", err.Error())
	}
	return ok(c, list)
}

// pairConnection provisions a whatsmeow device for the connection and starts
// pairing; poll the qr endpoint for the code.
func (s *Server) pairConnection(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid connection ID", nil)
	}
	if s.wa == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	if err := s.wa.PairConnection(c.Request().Context(), id); err != nil {
		return fail(c, http.StatusInternalServerError, "PAIR_FAILED", "Failed to start pairing", err.Error())
	}
	return ok(c, map[string]interface{}{"started": true})
}

// connectionQR returns the outstanding pairing code for a connection. The
// frontend renders the QR image client-side from the raw code string.
func (s *Server) connectionQR(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid connection ID", nil)
	}
	if s.wa == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	code := s.wa.QRCode(id)
	return ok(c, map[string]interface{}{"code": code, "has_qr": code != ""})
}

func (s *Server) disconnectConnection(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid connection ID", nil)
	}
	if s.wa == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	if err := s.wa.Disconnect(id); err != nil {
		return fail(c, http.StatusInternalServerError, "DISCONNECT_FAILED", "Failed to disconnect", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
