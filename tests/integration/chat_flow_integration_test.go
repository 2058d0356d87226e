package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/controllers"
	"github.com/campusmarket/communication-service/middleware"
	"github.com/campusmarket/communication-service/models"
	"github.com/campusmarket/communication-service/realtime"
	"github.com/campusmarket/communication-service/services"
	"github.com/campusmarket/communication-service/tests/testutil"
)

// ChatFlowIntegrationTestSuite drives the whole deal lifecycle over the HTTP
// surface: respond to a listing, exchange messages, leave feedback, archive.
type ChatFlowIntegrationTestSuite struct {
	suite.Suite
	router *gin.Engine
	db     *gorm.DB
	hub    *realtime.Hub

	owner     models.User
	responder models.User
	service   models.Service
}

// SetupSuite runs once before all tests
func (suite *ChatFlowIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)

	testutil.SetCommunicationTestEnv(suite.T())
	testutil.RequireTestEnvironment(suite.T())

	_, err := config.Load()
	suite.NoError(err)
}

// SetupTest runs before each test
func (suite *ChatFlowIntegrationTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.NoError(err)
	suite.db = db

	err = db.AutoMigrate(
		&models.User{},
		&models.Service{},
		&models.Response{},
		&models.Message{},
		&models.Feedback{},
	)
	suite.NoError(err)
	config.SetDB(db)

	mockS3 := services.NewMockS3Service()
	mockS3.SetAsMockForTesting()

	suite.hub = realtime.NewHub()
	go suite.hub.Run()
	controllers.SetHub(suite.hub)

	suite.owner = models.User{Auth0ID: "auth0|owner", Email: "owner@example.edu", Name: "Maria", Surname: "Sidorova", Role: "student"}
	db.Create(&suite.owner)
	suite.responder = models.User{Auth0ID: "auth0|responder", Email: "responder@example.edu", Name: "Ivan", Surname: "Orlov", Role: "student"}
	db.Create(&suite.responder)

	suite.service = models.Service{OwnerID: suite.owner.ID, Title: "Thesis formatting", Status: "ACTIVE"}
	db.Create(&suite.service)

	suite.router = gin.New()
	v1 := suite.router.Group("/api/v1")
	{
		v1.GET("/users/:id", suite.authAs(suite.responder.Auth0ID), controllers.GetUser)
		v1.GET("/services/:id", controllers.GetService)

		v1.POST("/services/:id/responses", suite.authAs(suite.responder.Auth0ID), controllers.CreateResponse)
		v1.PATCH("/services/:id/responses/:responseId/status", suite.authAs(suite.responder.Auth0ID), controllers.UpdateResponseStatus)
		v1.POST("/services/:id/feedback", suite.authAs(suite.responder.Auth0ID), controllers.CreateFeedback)
		v1.PATCH("/users/:id/rate", suite.authAs(suite.responder.Auth0ID), controllers.UpdateUserRate)

		v1.GET("/responses/chats/sent", suite.authAs(suite.responder.Auth0ID), controllers.ListSentChats)
		v1.GET("/responses/chats/owned", suite.authAs(suite.owner.Auth0ID), controllers.ListOwnedChats)
		v1.POST("/responses/:id/messages", suite.authAs(suite.responder.Auth0ID), controllers.SendMessage)
		v1.POST("/responses/:id/replies", suite.authAs(suite.owner.Auth0ID), controllers.SendMessage)
		v1.GET("/responses/:id/messages", suite.authAs(suite.responder.Auth0ID), controllers.ListMessages)
	}
}

// TearDownTest runs after each test
func (suite *ChatFlowIntegrationTestSuite) TearDownTest() {
	suite.hub.Stop()
	controllers.SetHub(nil)
	sqlDB, err := suite.db.DB()
	if err == nil {
		sqlDB.Close()
	}
}

// authAs simulates the JWT middleware for a fixed identity
func (suite *ChatFlowIntegrationTestSuite) authAs(auth0ID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("validated_claims", &validator.ValidatedClaims{
			CustomClaims: &middleware.CustomClaims{},
		})
		c.Next()
	}
}

func (suite *ChatFlowIntegrationTestSuite) doJSON(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		suite.NoError(err)
		reader = bytes.NewBuffer(encoded)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &parsed)
	return w, parsed
}

func (suite *ChatFlowIntegrationTestSuite) TestFullDealLifecycle() {
	// The responder opens a thread on the listing
	w, parsed := suite.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/services/%d/responses", suite.service.ID), map[string]interface{}{})
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())
	responseID := uint(parsed["data"].(map[string]interface{})["id"].(float64))

	// Both sides exchange messages
	w, _ = suite.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/responses/%d/messages", responseID),
		map[string]interface{}{"text": "Hi! Could you format 40 pages by Friday?"})
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())

	w, _ = suite.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/responses/%d/replies", responseID),
		map[string]interface{}{"text": "Friday works. Send the draft over."})
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())

	// The sender's chat list shows the thread with the newest message
	w, parsed = suite.doJSON(http.MethodGet, "/api/v1/responses/chats/sent", nil)
	suite.Equal(http.StatusOK, w.Code)
	chats := parsed["data"].([]interface{})
	suite.Len(chats, 1)
	chat := chats[0].(map[string]interface{})
	suite.Equal(float64(responseID), chat["response_id"])
	suite.Equal("Thesis formatting", chat["service_title"])
	suite.Equal("Friday works. Send the draft over.", chat["last_message_text"])

	// The owner sees the same thread on the owned side
	w, parsed = suite.doJSON(http.MethodGet, "/api/v1/responses/chats/owned", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(parsed["data"].([]interface{}), 1)

	// History comes back oldest first
	w, parsed = suite.doJSON(http.MethodGet, fmt.Sprintf("/api/v1/responses/%d/messages", responseID), nil)
	suite.Equal(http.StatusOK, w.Code)
	messages := parsed["data"].([]interface{})
	suite.Len(messages, 2)
	first := messages[0].(map[string]interface{})
	suite.Equal("Hi! Could you format 40 pages by Friday?", first["text"])

	// Deal done: feedback first, then archive
	w, _ = suite.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/services/%d/feedback", suite.service.ID),
		map[string]interface{}{"rate": 5, "review": "Perfect formatting, on time."})
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())

	w, _ = suite.doJSON(http.MethodPatch, fmt.Sprintf("/api/v1/services/%d/responses/%d/status", suite.service.ID, responseID),
		map[string]interface{}{"status": "ARCHIVED"})
	suite.Equal(http.StatusOK, w.Code, w.Body.String())

	var stored models.Response
	suite.db.First(&stored, responseID)
	suite.Equal(models.ResponseStatusArchived, stored.Status)

	// The archived thread still appears in the list with its status
	w, parsed = suite.doJSON(http.MethodGet, "/api/v1/responses/chats/sent", nil)
	suite.Equal(http.StatusOK, w.Code)
	chat = parsed["data"].([]interface{})[0].(map[string]interface{})
	suite.Equal(models.ResponseStatusArchived, chat["status"])

	// The aggregate rating refresh lands on the owner's profile
	w, _ = suite.doJSON(http.MethodPatch, fmt.Sprintf("/api/v1/users/%d/rate", suite.owner.ID),
		map[string]interface{}{"rate": 5})
	suite.Equal(http.StatusOK, w.Code, w.Body.String())

	var owner models.User
	suite.db.First(&owner, suite.owner.ID)
	if suite.NotNil(owner.Rate) {
		suite.InDelta(5.0, *owner.Rate, 0.001)
	}
}

func (suite *ChatFlowIntegrationTestSuite) TestWithdrawnThreadDisappears() {
	w, parsed := suite.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/services/%d/responses", suite.service.ID), map[string]interface{}{})
	suite.Equal(http.StatusCreated, w.Code)
	responseID := uint(parsed["data"].(map[string]interface{})["id"].(float64))

	req := httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/v1/services/%d/responses/%d", suite.service.ID, responseID), nil)
	w = httptest.NewRecorder()
	deleteRouter := gin.New()
	deleteRouter.DELETE("/api/v1/services/:id/responses/:responseId",
		suite.authAs(suite.responder.Auth0ID), controllers.DeleteResponse)
	deleteRouter.ServeHTTP(w, req)
	suite.Equal(http.StatusOK, w.Code, w.Body.String())

	w, parsed = suite.doJSON(http.MethodGet, "/api/v1/responses/chats/sent", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(parsed["data"].([]interface{}), 0, "Withdrawn threads leave the chat list")
}

func TestChatFlowIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ChatFlowIntegrationTestSuite))
}
