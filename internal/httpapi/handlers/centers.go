package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meditech-nic/backend/internal/centers"
	"github.com/meditech-nic/backend/internal/common"
)

// NearbyCenters ranks active health centers by distance from lat/lon.
// Query params: lat and lon (required), limit and max_km (optional).
func (h *Handler) NearbyCenters(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "lat and lon are required")
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		common.Fail(c, http.StatusBadRequest, 10002, "lat/lon out of range")
		return
	}

	opts := centers.NearbyOptions{
		Limit: h.Cfg.NearbyDefaultLimit,
		MaxKm: h.Cfg.NearbyDefaultMaxKm,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := c.Query("max_km"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			opts.MaxKm = f
		}
	}

	results, err := h.Centers.Nearby(c.Request.Context(), lat, lon, opts)
	if err != nil {
		h.Log.Error("nearby lookup failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"centers": results})
}
