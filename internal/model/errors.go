package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, profile, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingParameter   = "MISSING_PARAMETER"
	ErrCodeInvalidCompareMode = "INVALID_COMPARE_MODE"
	ErrCodeResolutionFailed   = "RESOLUTION_FAILED"
	ErrCodeProfilePrivate     = "PROFILE_PRIVATE"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeBothProfilesFailed = "BOTH_PROFILES_FAILED"
	ErrCodeRequestCancelled   = "REQUEST_CANCELLED"
)

var (
	// ErrCancelled は呼び出し元によるキャンセルを表す。上流の失敗とは区別する。
	ErrCancelled = errors.New("request cancelled")
	// ErrProfilePrivate は所有ゲーム一覧のレスポンスにエンベロープが無いことを表す。
	ErrProfilePrivate = errors.New("profile not found or private - game details are not public")
	// ErrEmptyInput は識別子の入力が空であることを表す。
	ErrEmptyInput = errors.New("empty steam identifier")
)

// ResolutionError はvanity名をSteamID64に解決できなかったことを表す。
type ResolutionError struct {
	Input  string // 利用者が入力した文字列
	Reason string // 上流が返した説明。無い場合は汎用メッセージ
	Err    error  // 原因となったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *ResolutionError) Error() string {
	return e.Reason
}

// Unwrap は原因エラーを返す。
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// FetchError は所有ゲーム一覧の取得に失敗したことを表す。
type FetchError struct {
	SteamID    string
	StatusCode int // HTTPステータス。トランスポートエラーやエンベロープ欠落の場合は0
	Reason     string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	return e.Reason
}

// Unwrap は原因エラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsProfilePrivate はエラーが非公開プロフィールを示すかどうかを返す。
func IsProfilePrivate(err error) bool {
	return errors.Is(err, ErrProfilePrivate)
}

// NewMissingParameterError は必須クエリパラメータ欠落エラーを生成する。
func NewMissingParameterError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingParameter,
		Message:  message,
		Category: "validation",
		Action:   "Provide a Steam username, profile URL, or SteamID64.",
	}
}

// NewInvalidCompareModeError は無効な比較モードエラーを生成する。
func NewInvalidCompareModeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCompareMode,
		Message:  fmt.Sprintf("invalid compareBy value: %s", mode),
		Category: "validation",
		Action:   "Use compareBy=playtime or compareBy=achievements.",
	}
}

// NewResolutionFailedError は識別子解決失敗エラーを生成する。
func NewResolutionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeResolutionFailed,
		Message:  reason,
		Category: "profile",
		Action:   "Check the username or profile URL and try again.",
	}
}

// NewProfilePrivateError は非公開プロフィールエラーを生成する。
func NewProfilePrivateError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProfilePrivate,
		Message:  fmt.Sprintf("Profile is private: %s", reason),
		Category: "profile",
		Action:   "Please make your game details public in Steam settings.",
	}
}

// NewUpstreamFailedError はSteam API呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  reason,
		Category: "upstream",
		Action:   "Please wait and try again later.",
	}
}

// NewBothProfilesFailedError は両アカウントとも取得できなかった場合のエラーを生成する。
func NewBothProfilesFailedError(reasonA, reasonB string) *APIError {
	return &APIError{
		Code:     ErrCodeBothProfilesFailed,
		Message:  fmt.Sprintf("Both profiles have issues: %s %s", reasonA, reasonB),
		Category: "profile",
		Action:   "Please ensure game details are set to public in Steam settings.",
	}
}

// NewRequestCancelledError はキャンセルされたリクエストのエラーを生成する。
func NewRequestCancelledError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestCancelled,
		Message:  "Request cancelled",
		Category: "system",
		Action:   "Retry the request.",
	}
}
