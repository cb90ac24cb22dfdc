// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/hitoshi/evote/internal/middleware"
	"github.com/hitoshi/evote/internal/model"
)

// maxFormBodySize はJSON・フォーム送信のボディ上限。
const maxFormBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeDateFormat, model.ErrCodeTypeCoercion:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated, model.ErrCodeIdentityMismatch, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeAdminForbidden, model.ErrCodeCSRFTokenInvalid:
		return http.StatusForbidden
	case model.ErrCodeAssetNotFound:
		return http.StatusNotFound
	case model.ErrCodeLedgerRuleViolation:
		return http.StatusConflict
	case model.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeNoIdentityAvailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeMissingFile, model.ErrCodeStorageUnavailable,
		model.ErrCodeLedgerTimeout, model.ErrCodeLedgerUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// bodyError はリクエストボディの読み取りエラーをAPIErrorに変換する。
func bodyError(err error) *model.APIError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return model.NewPayloadTooLargeError(tooLarge.Limit)
	}
	return model.NewValidationError("body: malformed")
}

// requestFields はJSONまたはフォームエンコードのボディから指定項目を文字列で取り出す。
// 存在しない項目は空文字になる。
func requestFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	out := make(map[string]string, len(names))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, bodyError(err)
		}
		for _, name := range names {
			switch v := body[name].(type) {
			case nil:
			case string:
				out[name] = v
			case json.Number:
				out[name] = v.String()
			default:
				out[name] = fmt.Sprint(v)
			}
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, bodyError(err)
	}
	for _, name := range names {
		out[name] = r.PostForm.Get(name)
	}
	return out, nil
}
