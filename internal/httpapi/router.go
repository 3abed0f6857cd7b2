package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditech-nic/backend/internal/common"
	"github.com/meditech-nic/backend/internal/httpapi/handlers"
	"github.com/meditech-nic/backend/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	// patient profile
	r.GET("/profile", h.GetProfile)
	r.GET("/profile/allergies", h.ListAllergies)
	r.POST("/profile/allergies", h.CreateAllergy)
	r.PUT("/profile/allergies/:id", h.SetAllergy)
	r.GET("/profile/conditions", h.ListConditions)
	r.POST("/profile/conditions", h.CreateCondition)
	r.PUT("/profile/conditions/:id", h.SetCondition)
	r.GET("/profile/demographics", h.GetDemographics)
	r.PUT("/profile/demographics", h.UpsertDemographics)

	// assistant chat
	r.POST("/chat/conversations", h.StartConversation)
	r.GET("/chat/conversations", h.ListConversations)
	r.POST("/chat/messages", h.SendMessage)
	r.POST("/chat/messages/async", h.SendMessageAsync)
	r.GET("/chat/jobs/:job_id", h.GetChatJob)
	r.GET("/chat/conversations/:conversation_id/messages", h.ListMessages)
	r.DELETE("/chat/conversations/:conversation_id", h.DeleteConversation)
	r.GET("/chat/conversations/:conversation_id/recommendations", h.ListRecommendations)

	// health centers
	r.GET("/centers/nearby", h.NearbyCenters)

	return r
}
