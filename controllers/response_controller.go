package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/models"
)

// ChatSummary is one row of the chat thread list: a response joined with its
// service and the newest message of its thread.
type ChatSummary struct {
	ResponseID        uint       `json:"response_id"`
	ServiceID         uint       `json:"service_id"`
	ServiceTitle      string     `json:"service_title"`
	SenderID          uint       `json:"sender_id"`
	OwnerID           uint       `json:"owner_id"`
	Status            string     `json:"status"`
	ResponseCreatedAt time.Time  `json:"response_created_at"`
	LastMessageID     *uint      `json:"last_message_id"`
	LastMessageAt     *time.Time `json:"last_message_at"`
	LastMessageText   *string    `json:"last_message_text"`
}

const chatSummarySelect = `
SELECT r.id AS response_id,
       r.service_id AS service_id,
       s.title AS service_title,
       r.sender_id AS sender_id,
       s.owner_id AS owner_id,
       r.status AS status,
       r.created_at AS response_created_at,
       m.id AS last_message_id,
       m.created_at AS last_message_at,
       m.text AS last_message_text
FROM responses r
JOIN services s ON s.id = r.service_id AND s.deleted_at IS NULL
LEFT JOIN messages m ON m.id = (
    SELECT id FROM messages
    WHERE response_id = r.id AND deleted_at IS NULL
    ORDER BY id DESC LIMIT 1
)
WHERE r.deleted_at IS NULL AND `

// CreateResponseRequest represents the request body for responding to a listing
type CreateResponseRequest struct {
	// Kept for wire compatibility with older clients; the authoritative
	// sender is always the authenticated user.
	SenderID uint `json:"sender_id"`
}

// CreateResponse handles POST /api/v1/services/:id/responses - expresses
// interest in a listing and opens its chat thread
func CreateResponse(c *gin.Context) {
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

	// A user cannot respond to their own listing
	if service.OwnerID == user.ID {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You cannot respond to your own listing",
			},
		})
		return
	}

	// One active response per user per listing
	var existing models.Response
	err := db.Where("service_id = ? AND sender_id = ? AND status = ?",
		service.ID, user.ID, models.ResponseStatusActive).First(&existing).Error
	if err == nil {
		c.PureJSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RESPONSE_EXISTS",
				"message": "You already have an active response to this listing",
			},
		})
		return
	}

	response := models.Response{
		ServiceID: service.ID,
		SenderID:  user.ID,
		Status:    models.ResponseStatusActive,
	}
	if err := db.Create(&response).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create response",
			},
		})
		return
	}

	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    response,
	})
}

// ListSentChats handles GET /api/v1/responses/chats/sent - chat summaries for
// every response the current user sent
func ListSentChats(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	var summaries []ChatSummary
	query := chatSummarySelect + `r.sender_id = ?
ORDER BY COALESCE(m.created_at, r.created_at) DESC, r.id ASC`
	if err := db.Raw(query, user.ID).Scan(&summaries).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch chats",
			},
		})
		return
	}

	if summaries == nil {
		summaries = []ChatSummary{}
	}
	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summaries,
	})
}

// ListOwnedChats handles GET /api/v1/responses/chats/owned - chat summaries
// for every response received on the current user's listings
func ListOwnedChats(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	var summaries []ChatSummary
	query := chatSummarySelect + `s.owner_id = ?
ORDER BY COALESCE(m.created_at, r.created_at) DESC, r.id ASC`
	if err := db.Raw(query, user.ID).Scan(&summaries).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch chats",
			},
		})
		return
	}

	if summaries == nil {
		summaries = []ChatSummary{}
	}
	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summaries,
	})
}

// UpdateResponseStatusRequest represents the request body for archiving a response
type UpdateResponseStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ACTIVE ARCHIVED"`
}

// UpdateResponseStatus handles PATCH /api/v1/services/:id/responses/:responseId/status -
// transitions a response between ACTIVE and ARCHIVED (deal completion)
func UpdateResponseStatus(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	db := config.GetDB()

	response, httpOK := findServiceResponse(c)
	if !httpOK {
		return
	}

	// Either participant can archive the thread
	if response.SenderID != user.ID && response.Service.OwnerID != user.ID {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the thread participants can change this response",
			},
		})
		return
	}

	var req UpdateResponseStatusRequest
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

	if err := db.Model(response).Update("status", req.Status).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update response status",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// DeleteResponse handles DELETE /api/v1/services/:id/responses/:responseId -
// withdraws a response outright, removing its thread
func DeleteResponse(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	db := config.GetDB()

	response, httpOK := findServiceResponse(c)
	if !httpOK {
		return
	}

	// Only the responder can withdraw; moderators can remove any response
	if response.SenderID != user.ID && user.Role != "moderator" {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the responder can withdraw this response",
			},
		})
		return
	}

	if err := db.Delete(response).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to delete response",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    nil,
	})
}

// ListUserResponses handles GET /api/v1/users/:id/responses - active
// responses sent by a user (archived with ?archived=true)
func ListUserResponses(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	db := config.GetDB()

	status := models.ResponseStatusActive
	if c.Query("archived") == "true" {
		status = models.ResponseStatusArchived
	}

	var responses []models.Response
	if err := db.Where("sender_id = ? AND status = ?", c.Param("id"), status).
		Order("created_at DESC").
		Find(&responses).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch responses",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    responses,
	})
}

// findServiceResponse loads the response addressed by the :id/:responseId
// route pair, with its service preloaded, writing the error response when it
// does not exist or does not belong to the service.
func findServiceResponse(c *gin.Context) (*models.Response, bool) {
	db := config.GetDB()

	var response models.Response
	if err := db.Preload("Service").First(&response, c.Param("responseId")).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RESPONSE_NOT_FOUND",
				"message": "Response not found",
			},
		})
		return nil, false
	}

	var service models.Service
	if err := db.First(&service, c.Param("id")).Error; err != nil || service.ID != response.ServiceID {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RESPONSE_NOT_FOUND",
				"message": "Response does not belong to this service",
			},
		})
		return nil, false
	}

	return &response, true
}
