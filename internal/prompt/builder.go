// Package prompt turns a caller's query and image into multimodal message content.
package prompt

import (
	"encoding/base64"
	"errors"

	"github.com/chew-z/vision-dispatch/internal/api"
	"github.com/chew-z/vision-dispatch/internal/vision"
)

// ErrEmptyRequest is returned when neither a query nor an image is supplied
var ErrEmptyRequest = errors.New("provide at least an image or a query")

// Build returns the content blocks for one user message: the query text first,
// then the image as a data URI. Absent inputs are omitted.
func Build(query string, img *vision.Image) ([]api.ContentPart, error) {
	if query == "" && img == nil {
		return nil, ErrEmptyRequest
	}

	content := make([]api.ContentPart, 0, 2)
	if query != "" {
		content = append(content, api.ContentPart{
			Type: api.ContentTypeText,
			Text: query,
		})
	}
	if img != nil {
		content = append(content, api.ContentPart{
			Type:     api.ContentTypeImageURL,
			ImageURL: &api.ImageURL{URL: DataURI(img.MIME, img.Data)},
		})
	}
	return content, nil
}

// DataURI encodes data as data:<mime>;base64,<payload>
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
