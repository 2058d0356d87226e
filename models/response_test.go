package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseTableName(t *testing.T) {
	assert.Equal(t, "responses", Response{}.TableName())
}

func TestMessageTableName(t *testing.T) {
	assert.Equal(t, "messages", Message{}.TableName())
}

func TestServiceTableName(t *testing.T) {
	assert.Equal(t, "services", Service{}.TableName())
}

func TestFeedbackTableName(t *testing.T) {
	assert.Equal(t, "feedbacks", Feedback{}.TableName())
}

func TestResponseStatusConstants(t *testing.T) {
	assert.Equal(t, "ACTIVE", ResponseStatusActive)
	assert.Equal(t, "ARCHIVED", ResponseStatusArchived)
}
