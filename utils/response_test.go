package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dalmocabral/crewcenter/apperr"
)

func TestErrorFromMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{apperr.NotFound("award not found"), http.StatusNotFound, "award not found"},
		{apperr.Validation("bad status"), http.StatusBadRequest, "bad status"},
		{apperr.Transient("lock", errors.New("deadlock")), http.StatusServiceUnavailable, "service temporarily unavailable"},
		{errors.New("driver exploded"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(w)
		ctx.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

		ErrorFrom(ctx, tc.err, 3)

		assert.Equal(t, tc.wantStatus, w.Code)
		var body JSONResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.wantStatus*100+3, body.Code)
		assert.Equal(t, tc.wantMsg, body.Message)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Tour d'Europe", SanitizeText(`<b>Tour d'Europe</b><script>alert(1)</script>`))
	assert.Equal(t, "<p>Fly <strong>six</strong> legs</p>", Sanitize(`<p onclick="x()">Fly <strong>six</strong> legs</p>`))
}

func TestUniqueUint(t *testing.T) {
	assert.Equal(t, []uint{3, 1, 2}, UniqueUint([]uint{3, 1, 3, 2, 1}))
	assert.Empty(t, UniqueUint(nil))
}
