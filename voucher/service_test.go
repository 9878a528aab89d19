package voucher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testService(t *testing.T) *Service {
	t.Helper()
	m := testManager(t)
	s, err := NewService(ServiceOptions{
		VoucherManager: m,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func postValidate(t *testing.T, s *Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestValidateEndpoint(t *testing.T) {
	s := testService(t)
	require.NoError(t, s.VoucherManager.Create(context.Background(), percentVoucher("SAVE20", 20)))

	t.Run("malformed json", func(t *testing.T) {
		w := postValidate(t, s, "{not json")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		w := postValidate(t, s, `{"planId": "basic"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown code is a negative verdict, not an error", func(t *testing.T) {
		w := postValidate(t, s, `{"code": "NOPE"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Result ValidateResponse `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		require.False(t, envelope.Result.Valid)
		require.Equal(t, ErrNotFound.Error(), envelope.Result.Reason)
	})

	t.Run("valid code", func(t *testing.T) {
		w := postValidate(t, s, `{"code": "SAVE20"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Result ValidateResponse `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		require.True(t, envelope.Result.Valid)
		require.NotNil(t, envelope.Result.Voucher)
		require.Equal(t, "SAVE20", envelope.Result.Voucher.Code)
	})
}
