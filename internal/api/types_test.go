package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusError_Error(t *testing.T) {
	err := ErrBadRequest("Provide at least an image or a query.")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "Provide at least an image or a query.", err.Error())
}

func TestWrapError(t *testing.T) {
	err := WrapError(assert.AnError, http.StatusBadRequest, "Invalid image format")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "Invalid image format: "+assert.AnError.Error(), err.Error())

	err = WrapError(nil, http.StatusInternalServerError, "boom")
	assert.Equal(t, "boom", err.Error())
}

func TestStatusError_JSONHidesStatus(t *testing.T) {
	data, err := json.Marshal(ErrNotFound("route not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"detail":"route not found"}`, string(data))
}

func TestContentPart_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal([]ContentPart{
		{Type: ContentTypeText, Text: "describe this"},
		{Type: ContentTypeImageURL, ImageURL: &ImageURL{URL: "data:image/png;base64,AAAA"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"text","text":"describe this"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}
	]`, string(data))
}

func TestChatResponse_MissingContent(t *testing.T) {
	var resp ChatResponse
	require.NoError(t, json.Unmarshal([]byte(`{"choices":[{"message":{"role":"assistant"}}]}`), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Nil(t, resp.Choices[0].Message.Content)
}
