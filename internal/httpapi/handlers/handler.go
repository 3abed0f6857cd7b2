package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/centers"
	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/common"
	"github.com/meditech-nic/backend/internal/config"
	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/profile"
	"github.com/meditech-nic/backend/internal/screening"
	"github.com/meditech-nic/backend/internal/store/rabbitmq"
)

// Handler bundles the services behind the HTTP surface. The app serves a
// single local user; every request resolves that user's id on entry instead
// of carrying authentication.
type Handler struct {
	DB        *gorm.DB
	Cfg       config.Config
	Profiles  *profile.Repo
	ChatSvc   *chat.Service
	Screening *screening.Service
	Centers   *centers.Repo
	Rabbit    *rabbitmq.Publisher // nil disables the async chat flow
	Log       *logger.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, profiles *profile.Repo, chatSvc *chat.Service, screeningSvc *screening.Service, centersRepo *centers.Repo, rabbit *rabbitmq.Publisher, log *logger.Logger) *Handler {
	return &Handler{
		DB:        db,
		Cfg:       cfg,
		Profiles:  profiles,
		ChatSvc:   chatSvc,
		Screening: screeningSvc,
		Centers:   centersRepo,
		Rabbit:    rabbit,
		Log:       log.With("component", "httpapi"),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": "pong", "data": nil})
}

// localUser resolves the device owner's id, creating the profile on first
// launch. On failure the response is already written.
func (h *Handler) localUser(c *gin.Context) (uint64, bool) {
	uid, err := h.Profiles.EnsureLocalUser(c.Request.Context())
	if err != nil {
		h.Log.Error("resolve local user failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return 0, false
	}
	return uid, true
}
