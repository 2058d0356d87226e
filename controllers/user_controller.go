package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/middleware"
	"github.com/campusmarket/communication-service/models"
	"github.com/campusmarket/communication-service/services"
)

var auth0Service *services.Auth0Service

// SetAuth0Service wires the Auth0 userinfo client used during profile
// provisioning. Called once at startup; tests substitute their own instance.
func SetAuth0Service(s *services.Auth0Service) {
	auth0Service = s
}

// CreateUser handles POST /api/v1/users - provisions a marketplace profile
// for the authenticated Auth0 identity. Idempotent: an existing profile is
// returned as-is.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.PureJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()

	var existing models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&existing).Error; err == nil {
		c.PureJSON(http.StatusOK, gin.H{
			"success": true,
			"data":    existing,
		})
		return
	}

	// Pull identity fields from Auth0's userinfo endpoint
	authHeader := c.GetHeader("Authorization")
	accessToken := strings.TrimPrefix(authHeader, "Bearer ")
	if auth0Service == nil || accessToken == "" || accessToken == authHeader {
		c.PureJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Missing access token for profile provisioning",
			},
		})
		return
	}

	info, err := auth0Service.GetUserInfo(accessToken)
	if err != nil {
		c.PureJSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USERINFO_ERROR",
				"message": "Failed to fetch identity information",
			},
		})
		return
	}

	name := info.GivenName
	if name == "" {
		name = info.Name
	}
	user := models.User{
		Auth0ID: auth0ID,
		Email:   info.Email,
		Name:    name,
		Surname: info.FamilyName,
		Role:    "student",
	}
	if err := db.Create(&user).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create user",
			},
		})
		return
	}

	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetMyProfile handles GET /api/v1/users/me - returns the current user's profile
func GetMyProfile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetUser handles GET /api/v1/users/:id - public profile lookup, used by chat
// clients to resolve counterpart display fields
func GetUser(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	db := config.GetDB()
	var user models.User
	if err := db.First(&user, c.Param("id")).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User not found",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}
