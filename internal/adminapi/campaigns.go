package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"go.uber.org/zap"
)

// campaignPayload represents the campaign create/update request structure.
type campaignPayload struct {
	TenantId      int64  `json:"tenant_id,string"`
	Name          string `json:"name"`
	ScheduledAt   string `json:"scheduled_at"`
	Confirmation  bool   `json:"confirmation"`
	ContactListId int64  `json:"contact_list_id,string"`

	DispatchStrategy   string `json:"dispatch_strategy"`
	WhatsappId         int64  `json:"whatsapp_id,string"`
	AllowedWhatsappIds string `json:"allowed_whatsapp_ids"`

	Message1 string `json:"message1"`
	Message2 string `json:"message2"`
	Message3 string `json:"message3"`
	Message4 string `json:"message4"`
	Message5 string `json:"message5"`

	ConfirmationMessage1 string `json:"confirmation_message1"`
	ConfirmationMessage2 string `json:"confirmation_message2"`
	ConfirmationMessage3 string `json:"confirmation_message3"`
	ConfirmationMessage4 string `json:"confirmation_message4"`
	ConfirmationMessage5 string `json:"confirmation_message5"`

	MediaPath string `json:"media_path"`
	MediaName string `json:"media_name"`
	MediaMime string `json:"media_mime"`
}

func (s *Server) registerCampaignRoutes() {
	s.echo.GET("/api/v1/campaigns", s.listCampaigns)
	s.echo.GET("/api/v1/campaigns/:id", s.getCampaign)
	s.echo.POST("/api/v1/campaigns", s.createCampaign)
	s.echo.POST("/api/v1/campaigns/:id/schedule", s.scheduleCampaign)
	s.echo.POST("/api/v1/campaigns/:id/cancel", s.cancelCampaign)
	s.echo.GET("/api/v1/campaigns/:id/shippings", s.listCampaignShippings)
}

func (s *Server) listCampaigns(c echo.Context) error {
	db := s.app.DB()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}

	q := db.Model(&domain.Campaign{})
	if tenant := c.QueryParam("tenant_id"); tenant != "" {
		q = q.Where("tenant_id = ?", tenant)
	}
	if status := c.QueryParam("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		q = q.Where("name like ?", "%"+name+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to count campaigns", err.Error())
	}

	var list []domain.Campaign
	err := q.Order("scheduled_at desc").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&list).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to list campaigns", err.Error())
	}

	return ok(c, ListResponse{TotalCount: total, Pos: (page - 1) * perPage, Data: list})
}

func (s *Server) getCampaign(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID", nil)
	}
	var camp domain.Campaign
	if err := s.app.DB().First(&camp, id).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Campaign not found", nil)
	}
	return ok(c, camp)
}

func (s *Server) createCampaign(c echo.Context) error {
	var p campaignPayload
	if err := c.Bind(&p); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid campaign payload", err.Error())
	}
	if p.Name == "" || p.ContactListId == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", "name and contact_list_id are required", nil)
	}
	if p.Message1 == "" && p.Message2 == "" && p.Message3 == "" && p.Message4 == "" && p.Message5 == "" {
		return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", "at least one message variant is required", nil)
	}

	scheduledAt := time.Now()
	if p.ScheduledAt != "" {
		t, err := time.ParseInLocation(time.RFC3339, p.ScheduledAt, time.Local)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", "scheduled_at must be RFC3339", err.Error())
		}
		scheduledAt = t
	}

	strategy := p.DispatchStrategy
	if strategy == "" {
		strategy = domain.DispatchStrategySingle
	}

	camp := domain.Campaign{
		TenantId:             p.TenantId,
		Name:                 p.Name,
		Status:               domain.CampaignStatusDraft,
		ScheduledAt:          scheduledAt,
		Confirmation:         p.Confirmation,
		ContactListId:        p.ContactListId,
		DispatchStrategy:     strategy,
		WhatsappId:           p.WhatsappId,
		AllowedWhatsappIds:   p.AllowedWhatsappIds,
		Message1:             p.Message1,
		Message2:             p.Message2,
		Message3:             p.Message3,
		Message4:             p.Message4,
		Message5:             p.Message5,
		ConfirmationMessage1: p.ConfirmationMessage1,
		ConfirmationMessage2: p.ConfirmationMessage2,
		ConfirmationMessage3: p.ConfirmationMessage3,
		ConfirmationMessage4: p.ConfirmationMessage4,
		ConfirmationMessage5: p.ConfirmationMessage5,
		MediaPath:            p.MediaPath,
		MediaName:            p.MediaName,
		MediaMime:            p.MediaMime,
	}
	if err := s.app.DB().Create(&camp).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create campaign", err.Error())
	}
	zap.L().Info("campaign created",
		zap.Int64("campaign_id", camp.ID),
		zap.String("name", camp.Name))
	return ok(c, camp)
}

// scheduleCampaign moves a Draft campaign to Scheduled so the activation
// scanner picks it up.
func (s *Server) scheduleCampaign(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID", nil)
	}
	res := s.app.DB().Model(&domain.Campaign{}).
		Where("id = ? and status = ?", id, domain.CampaignStatusDraft).
		Update("status", domain.CampaignStatusScheduled)
	if res.Error != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to schedule campaign", res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return fail(c, http.StatusConflict, "INVALID_STATE", "Campaign is not in Draft state", nil)
	}
	zap.L().Info("campaign scheduled", zap.Int64("campaign_id", id))
	return c.NoContent(http.StatusNoContent)
}

// cancelCampaign stops a Scheduled or Running campaign. In-flight dispatch
// jobs notice the status change and drop without sending.
func (s *Server) cancelCampaign(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID", nil)
	}
	res := s.app.DB().Model(&domain.Campaign{}).
		Where("id = ? and status in ?", id, []string{domain.CampaignStatusScheduled, domain.CampaignStatusRunning}).
		Update("status", domain.CampaignStatusCancelled)
	if res.Error != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to cancel campaign", res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return fail(c, http.StatusConflict, "INVALID_STATE", "Campaign is not cancellable", nil)
	}
	zap.L().Info("campaign cancelled", zap.Int64("campaign_id", id))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listCampaignShippings(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID", nil)
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 50
	}

	q := s.app.DB().Model(&domain.CampaignShipping{}).Where("campaign_id = ?", id)
	if status := c.QueryParam("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to count shippings", err.Error())
	}

	var list []domain.CampaignShipping
	err = q.Order("id asc").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&list).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to list shippings", err.Error())
	}

	return ok(c, ListResponse{TotalCount: total, Pos: (page - 1) * perPage, Data: list})
}
