// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steamcompare/internal/middleware"
	"github.com/hitoshi/steamcompare/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse はAPIErrorをJSON形式でレスポンスに書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr == nil {
		// 分類できないエラーは内部サーバーエラーとして扱う
		logger.Error("internal server error",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// toAPIError はドメインエラーをAPIErrorに変換する。変換できない場合はnilを返す。
func toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, model.ErrCancelled) {
		return model.NewRequestCancelledError()
	}

	if model.IsProfilePrivate(err) {
		return model.NewProfilePrivateError(err.Error())
	}

	var resErr *model.ResolutionError
	if errors.As(err, &resErr) {
		return model.NewResolutionFailedError(resErr.Error())
	}

	var fetchErr *model.FetchError
	if errors.As(err, &fetchErr) {
		return model.NewUpstreamFailedError(fetchErr.Error())
	}

	return nil
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingParameter, model.ErrCodeInvalidCompareMode:
		return http.StatusBadRequest
	case model.ErrCodeProfilePrivate, model.ErrCodeBothProfilesFailed:
		return http.StatusBadRequest
	case model.ErrCodeResolutionFailed:
		return http.StatusNotFound
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	case model.ErrCodeRequestCancelled:
		return middleware.StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
