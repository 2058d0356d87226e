package controllers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/models"
	"github.com/campusmarket/communication-service/services"
	"github.com/campusmarket/communication-service/utils"
)

const (
	defaultMessageLimit = 200
	maxMessageLimit     = 500
)

// SendMessageRequest represents the request body for sending a message.
// At least one of text and image_base64 must be present.
type SendMessageRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64"`
}

// SendMessage handles POST /api/v1/responses/:id/messages - appends a message
// to a response's thread and pushes it to connected participants
func SendMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	db := config.GetDB()

	var response models.Response
	if err := db.Preload("Service").First(&response, c.Param("id")).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RESPONSE_NOT_FOUND",
				"message": "Response not found",
			},
		})
		return
	}

	// Only the two thread participants can write to it
	receiverID, isParticipant := counterpartOf(&response, user.ID)
	if !isParticipant {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to message on this response",
			},
		})
		return
	}

	var req SendMessageRequest
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

	text := strings.TrimSpace(req.Text)
	if text == "" && req.ImageBase64 == "" {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Message must carry text or an image",
			},
		})
		return
	}

	message := models.Message{
		ResponseID: response.ID,
		SenderID:   user.ID,
		ReceiverID: receiverID,
	}
	if text != "" {
		message.Text = &text
	}

	if req.ImageBase64 != "" {
		data, contentType, err := utils.DecodeImageAttachment(req.ImageBase64)
		if err != nil {
			attErr, _ := err.(*utils.AttachmentError)
			code := "INVALID_ATTACHMENT"
			if attErr != nil {
				code = attErr.Code
			}
			c.PureJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    code,
					"message": err.Error(),
				},
			})
			return
		}

		s3Key, err := services.GetS3Service().UploadAttachment(data, contentType)
		if err != nil {
			c.PureJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UPLOAD_ERROR",
					"message": "Failed to store attachment",
				},
			})
			return
		}
		message.ImageS3Key = &s3Key
	}

	if err := db.Create(&message).Error; err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create message",
			},
		})
		return
	}

	attachImageURL(&message)

	// Live delivery to both participants; the HTTP reply is the source of
	// truth for the sender, the push is an echo that clients dedup by id.
	if hub != nil {
		hub.PublishNewMessage(&message)
	}

	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    message,
	})
}

// ListMessages handles GET /api/v1/responses/:id/messages - returns up to
// `limit` most recent messages in ascending creation order, optionally only
// those after `after_id`
func ListMessages(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	db := config.GetDB()

	var response models.Response
	if err := db.Preload("Service").First(&response, c.Param("id")).Error; err != nil {
		c.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RESPONSE_NOT_FOUND",
				"message": "Response not found",
			},
		})
		return
	}

	if _, isParticipant := counterpartOf(&response, user.ID); !isParticipant {
		c.PureJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to view messages on this response",
			},
		})
		return
	}

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.PureJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "limit must be a positive integer",
				},
			})
			return
		}
		if parsed > maxMessageLimit {
			parsed = maxMessageLimit
		}
		limit = parsed
	}

	query := db.Where("response_id = ?", response.ID)
	var messages []models.Message

	if raw := c.Query("after_id"); raw != "" {
		afterID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.PureJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "after_id must be a non-negative integer",
				},
			})
			return
		}
		err = query.Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&messages).Error
		if err != nil {
			c.PureJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to fetch messages",
				},
			})
			return
		}
	} else {
		// Newest `limit` messages, returned oldest first
		err := query.Order("id DESC").Limit(limit).Find(&messages).Error
		if err != nil {
			c.PureJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to fetch messages",
				},
			})
			return
		}
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	for i := range messages {
		attachImageURL(&messages[i])
	}

	if messages == nil {
		messages = []models.Message{}
	}
	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    messages,
	})
}

// counterpartOf returns the other participant of a response's thread and
// whether userID participates at all.
func counterpartOf(response *models.Response, userID uint) (uint, bool) {
	switch userID {
	case response.SenderID:
		return response.Service.OwnerID, true
	case response.Service.OwnerID:
		return response.SenderID, true
	default:
		return 0, false
	}
}

// attachImageURL fills the computed presigned URL for a message attachment.
// Presign failures degrade to a message without a URL rather than failing
// the request.
func attachImageURL(message *models.Message) {
	if message.ImageS3Key == nil {
		return
	}
	url, err := services.GetS3Service().GetPresignedURL(*message.ImageS3Key)
	if err != nil {
		log.Printf("Failed to presign attachment %s: %v", *message.ImageS3Key, err)
		return
	}
	if url != "" {
		message.ImageURL = &url
	}
}
