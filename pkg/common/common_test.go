package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinboard/pkg/apperr"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation", apperr.Validation("Invalid user ID"), 400, `{"status":"fail","message":"Invalid user ID"}`},
		{"not found", apperr.NotFound("post not found"), 404, `{"status":"fail","message":"post not found"}`},
		{"forbidden", apperr.Forbidden("only the owner can do that"), 403, `{"status":"fail","message":"only the owner can do that"}`},
		{"internal hides cause", apperr.Internal("failed loading posts", errors.New("socket closed")), 500, `{"status":"error","message":"failed loading posts"}`},
		{"plain error", errors.New("boom"), 500, `{"status":"error","message":"something went wrong"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
			WriteError(w, r, tc.err)
			assert.Equal(t, tc.wantCode, w.Code)
			assert.JSONEq(t, tc.wantBody, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestWriteData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusCreated, map[string]int{"count": 1})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"count":1}}`, w.Body.String())
}

func TestParseReqBody(t *testing.T) {
	dst := struct{ Text string }{}
	require.NoError(t, ParseReqBody(strings.NewReader(`{"text":"hi"}`), &dst))
	assert.Equal(t, "hi", dst.Text)

	err := ParseReqBody(strings.NewReader(`{`), &dst)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("64b7f0c2a1b2c3d4e5f60718", "post")
	require.NoError(t, err)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", id.Hex())

	_, err = ParseID("not-an-id", "user")
	assert.EqualError(t, err, "Invalid user ID")
}

func TestPasswords(t *testing.T) {
	hash, err := NewPassHash("sdfsdfsdf")
	require.NoError(t, err)
	assert.True(t, CheckPass(hash, "sdfsdfsdf"))
	assert.False(t, CheckPass(hash, "badpassword"))
	assert.False(t, CheckPass([]byte("short"), "sdfsdfsdf"))
	assert.Equal(t, HashPass("sdfsdfsdf", "12345678"), HashPass("sdfsdfsdf", "12345678"))
}

func TestNewToken(t *testing.T) {
	a, err := NewToken(21)
	require.NoError(t, err)
	b, err := NewToken(21)
	require.NoError(t, err)
	assert.Len(t, a, 21)
	assert.NotEqual(t, a, b)
}
