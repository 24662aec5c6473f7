package constants

import "strings"

// EmailAttachmentsContainer is the blob container intake writes to and the
// trigger watches.
const EmailAttachmentsContainer = "email-attachments"

// AllowedContentTypes holds the accepted MIME types for intake attachments.
var AllowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
}

// SupportedContentType reports whether intake accepts the given MIME type.
func SupportedContentType(contentType string) bool {
	_, ok := AllowedContentTypes[strings.ToLower(contentType)]
	return ok
}
