package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/common"
	"github.com/meditech-nic/backend/internal/models"
)

func (h *Handler) GetProfile(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	p, err := h.Profiles.GetPatientProfile(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("get profile failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, p)
}

func (h *Handler) ListAllergies(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	items, err := h.Profiles.ListAllergiesWithState(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("list allergies failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"allergies": items})
}

type setAllergyReq struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) SetAllergy(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	allergyID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || allergyID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid allergy id")
		return
	}
	var req setAllergyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Profiles.SetAllergy(c.Request.Context(), uid, allergyID, *req.Active); err != nil {
		h.Log.Error("set allergy failed", "allergy_id", allergyID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"allergy_id": allergyID, "active": *req.Active})
}

type createAllergyReq struct {
	Name string `json:"name" binding:"required"`
	Type string `json:"type"`
}

func (h *Handler) CreateAllergy(c *gin.Context) {
	var req createAllergyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name required")
		return
	}
	if err := h.Profiles.CreateAllergy(c.Request.Context(), req.Name, req.Type); err != nil {
		h.Log.Error("create allergy failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ListConditions(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	items, err := h.Profiles.ListConditionsWithState(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("list conditions failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"conditions": items})
}

type setConditionReq struct {
	Active *bool  `json:"active" binding:"required"`
	Status string `json:"status"`
}

func (h *Handler) SetCondition(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	conditionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || conditionID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid condition id")
		return
	}
	var req setConditionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Profiles.SetCondition(c.Request.Context(), uid, conditionID, *req.Active, req.Status); err != nil {
		h.Log.Error("set condition failed", "condition_id", conditionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"condition_id": conditionID, "active": *req.Active})
}

type createConditionReq struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateCondition(c *gin.Context) {
	var req createConditionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name required")
		return
	}
	if err := h.Profiles.CreateCondition(c.Request.Context(), req.Name); err != nil {
		h.Log.Error("create condition failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, nil)
}

func (h *Handler) GetDemographics(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	d, err := h.Profiles.GetDemographics(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.OK(c, nil)
			return
		}
		h.Log.Error("get demographics failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, d)
}

type upsertDemographicsReq struct {
	Age       *int     `json:"age"`
	Sex       *string  `json:"sex"`
	Pregnancy bool     `json:"pregnancy"`
	Lactation bool     `json:"lactation"`
	WeightKg  *float64 `json:"weight_kg"`
	HeightCm  *float64 `json:"height_cm"`
}

// UpsertDemographics replaces the whole row; fields absent from the body
// become NULL, never a stale previous value.
func (h *Handler) UpsertDemographics(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	var req upsertDemographicsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Sex != nil {
		s := strings.ToUpper(strings.TrimSpace(*req.Sex))
		if s != "M" && s != "F" && s != "X" {
			common.Fail(c, http.StatusBadRequest, 10002, "sex must be M, F or X")
			return
		}
		req.Sex = &s
	}
	d := &models.Demographic{
		UserID:    uid,
		Age:       req.Age,
		Sex:       req.Sex,
		Pregnancy: req.Pregnancy,
		Lactation: req.Lactation,
		WeightKg:  req.WeightKg,
		HeightCm:  req.HeightCm,
	}
	if err := h.Profiles.UpsertDemographics(c.Request.Context(), d); err != nil {
		h.Log.Error("upsert demographics failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, d)
}
