package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	t.Parallel()

	a, b := GenerateID(), GenerateID()
	require.NotEqual(t, a, b)
	require.True(t, IsValidID(a))
	require.False(t, IsValidID("not-an-id"))
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	require.NoError(t, SetLevel("info"))
	require.Error(t, SetLevel("loud"))
}

func TestAbortJSONError(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	reached := false
	router.GET("/x", func(c *gin.Context) {
		AbortJSONError(c, http.StatusUnauthorized, errors.New("missing token"), "unauthorized")
	}, func(c *gin.Context) {
		reached = true
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, reached)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "unauthorized", resp["message"])
	require.Equal(t, "missing token", resp["error"])
}
