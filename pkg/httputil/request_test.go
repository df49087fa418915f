package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "trailing whitespace", body: "{\"name\": \"test\"}\n"},
		{name: "invalid JSON", body: `{invalid}`, wantError: "invalid JSON"},
		{name: "empty body", body: ``, wantError: "invalid JSON"},
		{name: "two objects", body: `{"name":"test"}{"name":"again"}`, wantError: "unexpected data"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", MaxJSONBody) + `"}`, wantError: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", strings.NewReader(tt.body))
			var dest map[string]string

			err := DecodeJSON(httptest.NewRecorder(), req, &dest)

			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest["name"])
		})
	}
}

func TestReadJSON(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`{bad`))
	var dest map[string]string

	ok := ReadJSON(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
}

type signupBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func TestParseAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantError string
	}{
		{name: "valid", body: `{"email":"a@example.com","password":"longenough"}`, wantOK: true},
		{name: "missing email", body: `{"password":"longenough"}`, wantError: "email is required"},
		{name: "bad email", body: `{"email":"nope","password":"longenough"}`, wantError: "email must be a valid email address"},
		{name: "short password", body: `{"email":"a@example.com","password":"short"}`, wantError: "password must be at least 8 characters"},
		{name: "malformed", body: `{`, wantError: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/signup", bytes.NewBufferString(tt.body))
			var dest signupBody

			ok := ParseAndValidate(w, req, &dest)

			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Contains(t, w.Body.String(), tt.wantError)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		name      string
		vars      map[string]string
		want      int64
		wantError string
	}{
		{name: "valid", vars: map[string]string{"id": "9223372036854775807"}, want: 9223372036854775807},
		{name: "missing", vars: map[string]string{}, wantError: "missing path parameter: id"},
		{name: "not a number", vars: map[string]string{"id": "abc"}, wantError: "invalid id: abc"},
		{name: "zero", vars: map[string]string{"id": "0"}, wantError: "invalid id: 0"},
		{name: "negative", vars: map[string]string{"id": "-4"}, wantError: "invalid id: -4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), tt.vars)

			got, ok := PathID(w, req, "id")

			if tt.wantError != "" {
				assert.False(t, ok)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Contains(t, w.Body.String(), tt.wantError)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query     string
		want      Page
		wantError string
	}{
		{query: "", want: Page{Limit: 50}},
		{query: "limit=25&offset=10", want: Page{Limit: 25, Offset: 10}},
		{query: "limit=1000", want: Page{Limit: 200}},
		{query: "limit=0", wantError: "invalid limit"},
		{query: "limit=x", wantError: "invalid limit"},
		{query: "offset=-1", wantError: "invalid offset"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)

			page, err := ParsePage(req, 50, 200)

			if tt.wantError != "" {
				assert.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, page)
		})
	}
}
