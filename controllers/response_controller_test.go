package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/models"
)

func TestCreateResponse(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	owner := models.User{Auth0ID: "auth0|owner", Email: "owner@example.edu", Name: "Owner", Role: "student"}
	db.Create(&owner)
	responder := models.User{Auth0ID: "auth0|responder", Email: "responder@example.edu", Name: "Responder", Role: "student"}
	db.Create(&responder)

	service := models.Service{OwnerID: owner.ID, Title: "Calculus tutoring", Status: "ACTIVE"}
	db.Create(&service)

	tests := []struct {
		name           string
		auth0ID        string
		serviceID      string
		seed           func()
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Responder opens a thread",
			auth0ID:        responder.Auth0ID,
			serviceID:      "1",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Owner cannot respond to own listing",
			auth0ID:        owner.Auth0ID,
			serviceID:      "1",
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
		{
			name:      "Duplicate active response is rejected",
			auth0ID:   responder.Auth0ID,
			serviceID: "1",
			seed: func() {
				db.Create(&models.Response{ServiceID: service.ID, SenderID: responder.ID, Status: models.ResponseStatusActive})
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "RESPONSE_EXISTS",
		},
		{
			name:      "Archived response does not block a new one",
			auth0ID:   responder.Auth0ID,
			serviceID: "1",
			seed: func() {
				db.Create(&models.Response{ServiceID: service.ID, SenderID: responder.ID, Status: models.ResponseStatusArchived})
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Unknown service",
			auth0ID:        responder.Auth0ID,
			serviceID:      "999",
			expectedStatus: http.StatusNotFound,
			expectedCode:   "SERVICE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Exec("DELETE FROM responses")
			if tt.seed != nil {
				tt.seed()
			}

			router := setupTestRouter()
			router.POST("/services/:id/responses", mockAuthMiddleware(tt.auth0ID), CreateResponse)

			req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/services/%s/responses", tt.serviceID), bytes.NewBufferString("{}"))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())

			var response map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &response)
			assert.NoError(t, err)

			if tt.expectedCode != "" {
				assert.False(t, response["success"].(bool))
				errorData := response["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedCode, errorData["code"])
			} else {
				assert.True(t, response["success"].(bool))
				data := response["data"].(map[string]interface{})
				assert.Equal(t, models.ResponseStatusActive, data["status"])
				assert.Equal(t, float64(responder.ID), data["sender_id"])
			}
		})
	}
}

func TestListChats(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	alice := models.User{Auth0ID: "auth0|alice", Email: "alice@example.edu", Name: "Alice", Role: "student"}
	db.Create(&alice)
	bob := models.User{Auth0ID: "auth0|bob", Email: "bob@example.edu", Name: "Bob", Role: "student"}
	db.Create(&bob)
	carol := models.User{Auth0ID: "auth0|carol", Email: "carol@example.edu", Name: "Carol", Role: "student"}
	db.Create(&carol)

	// Bob owns two listings; Alice and Carol respond.
	printing := models.Service{OwnerID: bob.ID, Title: "3D printing", Status: "ACTIVE"}
	db.Create(&printing)
	tutoring := models.Service{OwnerID: bob.ID, Title: "Physics tutoring", Status: "ACTIVE"}
	db.Create(&tutoring)

	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	// Alice -> printing: has the newest message overall
	aliceToPrinting := models.Response{ServiceID: printing.ID, SenderID: alice.ID, Status: models.ResponseStatusActive, CreatedAt: base}
	db.Create(&aliceToPrinting)
	// Alice -> tutoring: created later but has no messages
	aliceToTutoring := models.Response{ServiceID: tutoring.ID, SenderID: alice.ID, Status: models.ResponseStatusActive, CreatedAt: base.Add(10 * time.Minute)}
	db.Create(&aliceToTutoring)
	// Carol -> printing: one older message
	carolToPrinting := models.Response{ServiceID: printing.ID, SenderID: carol.ID, Status: models.ResponseStatusActive, CreatedAt: base}
	db.Create(&carolToPrinting)

	hello := "hello"
	newest := "is it still available?"
	db.Create(&models.Message{ResponseID: carolToPrinting.ID, SenderID: carol.ID, ReceiverID: bob.ID, Text: &hello, CreatedAt: base.Add(5 * time.Minute)})
	db.Create(&models.Message{ResponseID: aliceToPrinting.ID, SenderID: alice.ID, ReceiverID: bob.ID, Text: &hello, CreatedAt: base.Add(15 * time.Minute)})
	db.Create(&models.Message{ResponseID: aliceToPrinting.ID, SenderID: bob.ID, ReceiverID: alice.ID, Text: &newest, CreatedAt: base.Add(30 * time.Minute)})

	t.Run("Sent chats ordered by last activity", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/responses/chats/sent", mockAuthMiddleware(alice.Auth0ID), ListSentChats)

		req := httptest.NewRequest(http.MethodGet, "/responses/chats/sent", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

		var response struct {
			Success bool          `json:"success"`
			Data    []ChatSummary `json:"data"`
		}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.True(t, response.Success)
		assert.Len(t, response.Data, 2)

		// The printing thread has the newest message; the tutoring thread
		// falls back to its response creation time.
		assert.Equal(t, aliceToPrinting.ID, response.Data[0].ResponseID)
		assert.Equal(t, "3D printing", response.Data[0].ServiceTitle)
		assert.Equal(t, bob.ID, response.Data[0].OwnerID)
		assert.NotNil(t, response.Data[0].LastMessageText)
		assert.Equal(t, newest, *response.Data[0].LastMessageText)

		assert.Equal(t, aliceToTutoring.ID, response.Data[1].ResponseID)
		assert.Nil(t, response.Data[1].LastMessageID)
	})

	t.Run("Owned chats cover every listing of the owner", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/responses/chats/owned", mockAuthMiddleware(bob.Auth0ID), ListOwnedChats)

		req := httptest.NewRequest(http.MethodGet, "/responses/chats/owned", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Success bool          `json:"success"`
			Data    []ChatSummary `json:"data"`
		}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Len(t, response.Data, 3)
		assert.Equal(t, aliceToPrinting.ID, response.Data[0].ResponseID)
		assert.Equal(t, aliceToTutoring.ID, response.Data[1].ResponseID)
		assert.Equal(t, carolToPrinting.ID, response.Data[2].ResponseID)
		// The sender id lets the owner resolve the counterpart
		assert.Equal(t, carol.ID, response.Data[2].SenderID)
	})

	t.Run("No chats yields an empty list", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/responses/chats/sent", mockAuthMiddleware(bob.Auth0ID), ListSentChats)

		req := httptest.NewRequest(http.MethodGet, "/responses/chats/sent", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.True(t, response["success"].(bool))
		assert.Len(t, response["data"], 0)
	})
}

func TestUpdateResponseStatus(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	owner := models.User{Auth0ID: "auth0|owner", Email: "owner@example.edu", Name: "Owner", Role: "student"}
	db.Create(&owner)
	responder := models.User{Auth0ID: "auth0|responder", Email: "responder@example.edu", Name: "Responder", Role: "student"}
	db.Create(&responder)
	outsider := models.User{Auth0ID: "auth0|outsider", Email: "outsider@example.edu", Name: "Outsider", Role: "student"}
	db.Create(&outsider)

	service := models.Service{OwnerID: owner.ID, Title: "Essay proofreading", Status: "ACTIVE"}
	db.Create(&service)
	other := models.Service{OwnerID: owner.ID, Title: "Another listing", Status: "ACTIVE"}
	db.Create(&other)

	tests := []struct {
		name           string
		auth0ID        string
		servicePath    string
		body           map[string]interface{}
		expectedStatus int
		expectedCode   string
		wantStatus     string
	}{
		{
			name:           "Responder archives the thread",
			auth0ID:        responder.Auth0ID,
			servicePath:    "1",
			body:           map[string]interface{}{"status": "ARCHIVED"},
			expectedStatus: http.StatusOK,
			wantStatus:     models.ResponseStatusArchived,
		},
		{
			name:           "Owner reactivates the thread",
			auth0ID:        owner.Auth0ID,
			servicePath:    "1",
			body:           map[string]interface{}{"status": "ACTIVE"},
			expectedStatus: http.StatusOK,
			wantStatus:     models.ResponseStatusActive,
		},
		{
			name:           "Outsider cannot touch the thread",
			auth0ID:        outsider.Auth0ID,
			servicePath:    "1",
			body:           map[string]interface{}{"status": "ARCHIVED"},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
		{
			name:           "Invalid status value",
			auth0ID:        responder.Auth0ID,
			servicePath:    "1",
			body:           map[string]interface{}{"status": "CLOSED"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "Response addressed through the wrong service",
			auth0ID:        responder.Auth0ID,
			servicePath:    "2",
			body:           map[string]interface{}{"status": "ARCHIVED"},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "RESPONSE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Exec("DELETE FROM responses")
			response := models.Response{ServiceID: service.ID, SenderID: responder.ID, Status: models.ResponseStatusActive}
			db.Create(&response)

			router := setupTestRouter()
			router.PATCH("/services/:id/responses/:responseId/status", mockAuthMiddleware(tt.auth0ID), UpdateResponseStatus)

			body, _ := json.Marshal(tt.body)
			path := fmt.Sprintf("/services/%s/responses/%d/status", tt.servicePath, response.ID)
			req := httptest.NewRequest(http.MethodPatch, path, bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())

			var parsed map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &parsed)
			assert.NoError(t, err)

			if tt.expectedCode != "" {
				assert.False(t, parsed["success"].(bool))
				errorData := parsed["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedCode, errorData["code"])
			} else {
				assert.True(t, parsed["success"].(bool))
				var stored models.Response
				db.First(&stored, response.ID)
				assert.Equal(t, tt.wantStatus, stored.Status)
			}
		})
	}
}

func TestDeleteResponse(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	owner := models.User{Auth0ID: "auth0|owner", Email: "owner@example.edu", Name: "Owner", Role: "student"}
	db.Create(&owner)
	responder := models.User{Auth0ID: "auth0|responder", Email: "responder@example.edu", Name: "Responder", Role: "student"}
	db.Create(&responder)
	moderator := models.User{Auth0ID: "auth0|moderator", Email: "moderator@example.edu", Name: "Moderator", Role: "moderator"}
	db.Create(&moderator)

	service := models.Service{OwnerID: owner.ID, Title: "Bike repair", Status: "ACTIVE"}
	db.Create(&service)

	tests := []struct {
		name           string
		auth0ID        string
		expectedStatus int
		expectedCode   string
		wantGone       bool
	}{
		{
			name:           "Responder withdraws the response",
			auth0ID:        responder.Auth0ID,
			expectedStatus: http.StatusOK,
			wantGone:       true,
		},
		{
			name:           "Owner cannot withdraw the responder's thread",
			auth0ID:        owner.Auth0ID,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
		{
			name:           "Moderator removes any response",
			auth0ID:        moderator.Auth0ID,
			expectedStatus: http.StatusOK,
			wantGone:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Exec("DELETE FROM responses")
			response := models.Response{ServiceID: service.ID, SenderID: responder.ID, Status: models.ResponseStatusActive}
			db.Create(&response)

			router := setupTestRouter()
			router.DELETE("/services/:id/responses/:responseId", mockAuthMiddleware(tt.auth0ID), DeleteResponse)

			path := fmt.Sprintf("/services/%d/responses/%d", service.ID, response.ID)
			req := httptest.NewRequest(http.MethodDelete, path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())

			var count int64
			db.Model(&models.Response{}).Where("id = ?", response.ID).Count(&count)
			if tt.wantGone {
				assert.Equal(t, int64(0), count, "Withdrawn response should be soft-deleted")
			} else {
				assert.Equal(t, int64(1), count)
			}

			if tt.expectedCode != "" {
				var parsed map[string]interface{}
				json.Unmarshal(w.Body.Bytes(), &parsed)
				errorData := parsed["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedCode, errorData["code"])
			}
		})
	}
}

func TestListUserResponses(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	owner := models.User{Auth0ID: "auth0|owner", Email: "owner@example.edu", Name: "Owner", Role: "student"}
	db.Create(&owner)
	responder := models.User{Auth0ID: "auth0|responder", Email: "responder@example.edu", Name: "Responder", Role: "student"}
	db.Create(&responder)

	service := models.Service{OwnerID: owner.ID, Title: "Guitar lessons", Status: "ACTIVE"}
	db.Create(&service)
	second := models.Service{OwnerID: owner.ID, Title: "Piano lessons", Status: "ACTIVE"}
	db.Create(&second)

	db.Create(&models.Response{ServiceID: service.ID, SenderID: responder.ID, Status: models.ResponseStatusActive})
	db.Create(&models.Response{ServiceID: second.ID, SenderID: responder.ID, Status: models.ResponseStatusArchived})

	router := setupTestRouter()
	router.GET("/users/:id/responses", mockAuthMiddleware(responder.Auth0ID), ListUserResponses)

	t.Run("Active responses by default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/users/%d/responses", responder.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data []models.Response `json:"data"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Len(t, response.Data, 1)
		assert.Equal(t, models.ResponseStatusActive, response.Data[0].Status)
	})

	t.Run("Archived responses on request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/users/%d/responses?archived=true", responder.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data []models.Response `json:"data"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Len(t, response.Data, 1)
		assert.Equal(t, models.ResponseStatusArchived, response.Data[0].Status)
	})
}
