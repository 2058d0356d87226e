package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/middleware"
	"github.com/campusmarket/communication-service/models"
	"github.com/campusmarket/communication-service/realtime"
)

var hub *realtime.Hub

// SetHub wires the realtime hub used to push new messages to connected
// participants. Called once at startup; may stay nil in tests that do not
// exercise live delivery.
func SetHub(h *realtime.Hub) {
	hub = h
}

// requireUser resolves the authenticated marketplace user from the JWT
// subject. On failure it writes the error response and returns ok=false.
func requireUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.PureJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	db := config.GetDB()
	var user models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User profile not found. Please create a profile first.",
			},
		})
		return nil, false
	}

	return &user, true
}
