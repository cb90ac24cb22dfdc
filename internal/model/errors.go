package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: auth, validation, upload, ledger, system
	Action   string   // ユーザー向け対処方法
	Details  []string // 項目単位の詳細（バリデーションエラー等）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeIdentityMismatch    = "IDENTITY_MISMATCH"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeMissingFile         = "MISSING_FILE"
	ErrCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	ErrCodeDateFormat          = "DATE_FORMAT"
	ErrCodeTypeCoercion        = "TYPE_COERCION"
	ErrCodeLedgerRuleViolation = "LEDGER_RULE_VIOLATION"
	ErrCodeLedgerTimeout       = "LEDGER_TIMEOUT"
	ErrCodeLedgerUnavailable   = "LEDGER_UNAVAILABLE"
	ErrCodeNoIdentityAvailable = "NO_IDENTITY_AVAILABLE"
	ErrCodeAdminForbidden      = "ADMIN_FORBIDDEN"
	ErrCodeCSRFTokenInvalid    = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ErrCodeAssetNotFound       = "ASSET_NOT_FOUND"
)

// IsCode はerrが指定コードのAPIErrorかどうかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewValidationError は入力値の欠落・不正を表すエラーを生成する。
// detailsには問題のあった項目を列挙する。
func NewValidationError(details ...string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力値が不足しているか、形式が正しくありません。",
		Category: "validation",
		Action:   "すべての必須項目を正しい形式で入力してください。",
		Details:  details,
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewIdentityMismatchError は申告されたIDと台帳で解決したIDが一致しない場合のエラーを生成する。
func NewIdentityMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityMismatch,
		Message:  "登録番号または台帳アドレスが正しくありません。",
		Category: "auth",
		Action:   "登録時に発行された台帳アドレスと登録番号を確認してください。",
	}
}

// NewInvalidCredentialsError は台帳のログイン判定が失敗した場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "登録番号または台帳アドレスが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewMissingFileError は必須ファイルが添付されていない場合のエラーを生成する。
func NewMissingFileError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingFile,
		Message:  fmt.Sprintf("必須ファイルが添付されていません: %s", field),
		Category: "upload",
		Action:   "写真とマニフェストの両方を添付してください。",
		Details:  []string{field},
	}
}

// NewStorageUnavailableError はアップロード先に書き込めない場合のエラーを生成する。
func NewStorageUnavailableError(bucket string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  fmt.Sprintf("ファイルの保存に失敗しました: %s", bucket),
		Category: "upload",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDateFormatError は日付の形式が不正な場合のエラーを生成する。
func NewDateFormatError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeDateFormat,
		Message:  fmt.Sprintf("日付の形式が正しくありません: %s", value),
		Category: "validation",
		Action:   "生年月日はYYYY-MM-DD形式で入力してください。",
		Details:  []string{"dob"},
	}
}

// NewDateOutOfRangeError は日付が台帳に記録できない範囲の場合のエラーを生成する。
func NewDateOutOfRangeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeDateFormat,
		Message:  fmt.Sprintf("1970-01-01より前の日付は登録できません: %s", value),
		Category: "validation",
		Action:   "1970-01-01以降の生年月日を入力してください。",
		Details:  []string{"dob"},
	}
}

// NewTypeCoercionError は数値項目に数値以外が入力された場合のエラーを生成する。
func NewTypeCoercionError(field, value string) *APIError {
	return &APIError{
		Code:     ErrCodeTypeCoercion,
		Message:  fmt.Sprintf("数値として解釈できません: %s=%q", field, value),
		Category: "validation",
		Action:   "年齢と経験年数は0以上の整数で入力してください。",
		Details:  []string{field},
	}
}

// NewLedgerRuleViolationError は台帳が業務ルール違反として拒否した場合のエラーを生成する。
// messageには台帳が返した理由をそのまま設定する。
func NewLedgerRuleViolationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeLedgerRuleViolation,
		Message:  message,
		Category: "ledger",
		Action:   "操作内容を確認してください。",
	}
}

// NewLedgerTimeoutError は台帳呼び出しがタイムアウトした場合のエラーを生成する。
func NewLedgerTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeLedgerTimeout,
		Message:  "台帳の応答がタイムアウトしました。",
		Category: "ledger",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewLedgerUnavailableError は台帳に到達できない場合のエラーを生成する。
func NewLedgerUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeLedgerUnavailable,
		Message:  "台帳でエラーが発生しました。",
		Category: "ledger",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNoIdentityAvailableError は割り当て可能な台帳アドレスが残っていない場合のエラーを生成する。
func NewNoIdentityAvailableError() *APIError {
	return &APIError{
		Code:     ErrCodeNoIdentityAvailable,
		Message:  "割り当て可能な台帳アドレスがありません。",
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}

// NewAdminForbiddenError は管理者キーが一致しない場合のエラーを生成する。
func NewAdminForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminForbidden,
		Message:  "管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者キーを指定してください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "リクエストの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPayloadTooLargeError はリクエストボディが上限を超えた場合のエラーを生成する。
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  fmt.Sprintf("リクエストサイズが上限（%dバイト）を超えています。", limit),
		Category: "upload",
		Action:   "ファイルサイズを小さくしてから再度お試しください。",
	}
}

// NewAssetNotFoundError はアップロードファイルが見つからない場合のエラーを生成する。
func NewAssetNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAssetNotFound,
		Message:  "指定されたファイルが見つかりません。",
		Category: "upload",
		Action:   "ファイル名を確認してください。",
	}
}
