package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	assert.Equal(t, CodeSuccess, ExtractCode(nil))
	assert.Equal(t, CodeInternal, ExtractCode(errors.New("plain")))
	assert.Equal(t, CodeJobNotFound, ExtractCode(NewError(CodeJobNotFound)))

	wrapped := fmt.Errorf("outer: %w", NewError(CodeVersionMismatch))
	assert.Equal(t, CodeVersionMismatch, ExtractCode(wrapped))
	assert.Equal(t, CodeTimeout, ExtractCode(CodeTimeout))
}

func TestExtractMessage_HidesInternal(t *testing.T) {
	err := Wrap(CodeEngineError, errors.New("sql: connection refused"))
	assert.Equal(t, CodeEngineError.Message, ExtractMessage(err))
	assert.Contains(t, ExtractMessageUnsafe(err), "connection refused")

	v := NewErrorWithMessage(CodeVersionMismatch, "Invalid SDK version")
	assert.Equal(t, "Invalid SDK version", ExtractMessage(v))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		validation    bool
		notFound      bool
		communication bool
	}{
		{"nil", nil, false, false, false},
		{"version", NewError(CodeVersionMismatch), true, false, false},
		{"malformed", NewError(CodeValidationFailed), true, false, false},
		{"not found", NewError(CodeJobNotFound), false, true, false},
		{"unavailable", NewError(CodeServiceUnavailable), false, false, true},
		{"upstream", NewError(CodeUpstreamError), false, false, true},
		{"timeout", NewError(CodeTimeout), false, false, true},
		{"engine", NewError(CodeEngineError), false, false, false},
		{"plain", errors.New("x"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.communication, IsCommunication(tt.err))
		})
	}
	assert.True(t, IsCanceled(NewError(CodeCanceled)))
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, CodeSuccess, FromHTTPStatus(http.StatusOK))
	assert.Equal(t, CodeNotFound, FromHTTPStatus(http.StatusNotFound))
	assert.Equal(t, CodeInvalidParam, FromHTTPStatus(http.StatusBadRequest))
	assert.Equal(t, CodeServiceUnavailable, FromHTTPStatus(http.StatusServiceUnavailable))
	assert.Equal(t, CodeUpstreamError, FromHTTPStatus(http.StatusBadGateway))
	assert.Equal(t, CodeInternal, FromHTTPStatus(http.StatusInternalServerError))
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, NewErrorWithMessage(CodeVersionMismatch, "Invalid SDK version")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeVersionMismatch.Num, resp.Code)
	assert.Equal(t, "Invalid SDK version", resp.Message)

	err := resp.Err(CodeInternal)
	assert.True(t, IsValidation(err))
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]string{"outcome": "created"}))

	var resp Response[map[string]string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsSuccess())
	assert.NoError(t, resp.Err(CodeInternal))
	assert.Equal(t, "created", resp.Data["outcome"])
}

func TestResponseErr_UnknownCode(t *testing.T) {
	resp := Response[any]{Code: 99999, Message: "odd"}
	err := resp.Err(CodeUpstreamError)
	assert.True(t, IsCommunication(err))
}
