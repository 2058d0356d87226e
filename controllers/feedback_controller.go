package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/models"
)

const maxReviewLength = 5000

// CreateFeedbackRequest represents the request body for leaving feedback
type CreateFeedbackRequest struct {
	Rate   int     `json:"rate" binding:"required,min=1,max=5"`
	Review *string `json:"review"`
}

// CreateFeedback handles POST /api/v1/services/:id/feedback - records a
// rating and optional review after a completed deal
func CreateFeedback(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

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

	// Owners do not rate their own listings
	if service.OwnerID == user.ID {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You cannot leave feedback on your own listing",
			},
		})
		return
	}

	// Feedback requires having actually responded to the listing
	var response models.Response
	if err := db.Where("service_id = ? AND sender_id = ?", service.ID, user.ID).
		First(&response).Error; err != nil {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Feedback is only available to users who responded to this listing",
			},
		})
		return
	}

	var req CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	if req.Review != nil {
		trimmed := strings.TrimSpace(*req.Review)
		if trimmed == "" {
			req.Review = nil
		} else if len(trimmed) > maxReviewLength {
			c.PureJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "Review exceeds the maximum length",
				},
			})
			return
		} else {
			req.Review = &trimmed
		}
	}

	feedback := models.Feedback{
		ServiceID: service.ID,
		SenderID:  user.ID,
		Rate:      req.Rate,
		Review:    req.Review,
	}
	if err := db.Create(&feedback).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create feedback",
			},
		})
		return
	}

	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    feedback,
	})
}

// ListFeedback handles GET /api/v1/services/:id/feedback - feedback left on a listing
func ListFeedback(c *gin.Context) {
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

	var feedback []models.Feedback
	if err := db.Where("service_id = ?", service.ID).
		Order("created_at DESC").
		Find(&feedback).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch feedback",
			},
		})
		return
	}

	if feedback == nil {
		feedback = []models.Feedback{}
	}
	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    feedback,
	})
}

// UpdateRateRequest represents the request body for the aggregate rate update
type UpdateRateRequest struct {
	Rate int `json:"rate" binding:"required,min=1,max=5"`
}

// UpdateUserRate handles PATCH /api/v1/users/:id/rate - refreshes a user's
// aggregate rating from the feedback left across their listings. The body's
// rate is the mark that triggered the update; the stored aggregate is always
// recomputed from the feedback table.
func UpdateUserRate(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	db := config.GetDB()

	var target models.User
	if err := db.First(&target, c.Param("id")).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User not found",
			},
		})
		return
	}

	var req UpdateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	var avg *float64
	err := db.Raw(`
SELECT AVG(f.rate * 1.0)
FROM feedbacks f
JOIN services s ON s.id = f.service_id AND s.deleted_at IS NULL
WHERE s.owner_id = ? AND f.deleted_at IS NULL`, target.ID).Scan(&avg).Error
	if err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to compute aggregate rating",
			},
		})
		return
	}

	if err := db.Model(&target).Update("rate", avg).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update aggregate rating",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    target,
	})
}
