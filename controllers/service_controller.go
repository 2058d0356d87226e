package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/models"
)

// GetService handles GET /api/v1/services/:id - read-only listing lookup,
// used by chat clients to resolve thread titles and ownership. Listing CRUD
// lives in the marketplace service.
func GetService(c *gin.Context) {
	db := config.GetDB()

	var service models.Service
	if err := db.First(&service, c.Param("id")).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_NOT_FOUND",
				"message": "Service not found",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    service,
	})
}
