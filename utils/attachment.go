package utils

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// MaxAttachmentSize is the maximum decoded size of a message image attachment (5MB)
const MaxAttachmentSize = 5 * 1024 * 1024

// AllowedImageTypes are the content types accepted for message attachments
var AllowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AttachmentError represents an attachment validation error
type AttachmentError struct {
	Code    string
	Message string
}

func (e *AttachmentError) Error() string {
	return e.Message
}

// DecodeImageAttachment decodes and validates a base64-encoded image payload.
// It returns the raw bytes and the sniffed content type.
func DecodeImageAttachment(encoded string) ([]byte, string, error) {
	// Tolerate data-URL prefixes from browser clients
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, "", &AttachmentError{
			Code:    "INVALID_ATTACHMENT",
			Message: fmt.Sprintf("Attachment is not valid base64: %v", err),
		}
	}

	if len(data) == 0 {
		return nil, "", &AttachmentError{
			Code:    "EMPTY_ATTACHMENT",
			Message: "Attachment is empty",
		}
	}

	if len(data) > MaxAttachmentSize {
		return nil, "", &AttachmentError{
			Code:    "ATTACHMENT_TOO_LARGE",
			Message: fmt.Sprintf("Attachment exceeds the maximum size of %d bytes", MaxAttachmentSize),
		}
	}

	contentType := http.DetectContentType(data)
	if _, ok := AllowedImageTypes[contentType]; !ok {
		return nil, "", &AttachmentError{
			Code:    "INVALID_ATTACHMENT_TYPE",
			Message: fmt.Sprintf("Attachment type %q is not supported; only PNG, JPEG, GIF and WebP images are accepted", contentType),
		}
	}

	return data, contentType, nil
}

// AttachmentExtension returns the file extension for an allowed content type
func AttachmentExtension(contentType string) string {
	return AllowedImageTypes[contentType]
}
