package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, vendor, access, passkey, system
	Action   string       // ユーザー向け対処方法
	Fields   []FieldError // 入力検証エラーの対象フィールド
}

// FieldError は入力検証で問題のあったフィールドを表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(names, ", "))
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodeForbidden                = "FORBIDDEN"
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeValidationFailed         = "VALIDATION_FAILED"
	ErrCodeInvalidEmail             = "INVALID_EMAIL"
	ErrCodeVendorNotFound           = "VENDOR_NOT_FOUND"
	ErrCodeVendorAlreadyExists      = "VENDOR_ALREADY_EXISTS"
	ErrCodeAccessRequestNotFound    = "ACCESS_REQUEST_NOT_FOUND"
	ErrCodeAccessRequestDecided     = "ACCESS_REQUEST_ALREADY_DECIDED"
	ErrCodeBootstrapDisabled        = "BOOTSTRAP_DISABLED"
	ErrCodeInviteInvalid            = "INVITE_INVALID"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeChallengeNotFound        = "CHALLENGE_NOT_FOUND"
	ErrCodePasskeyNotFound          = "PASSKEY_NOT_FOUND"
	ErrCodePasskeyVerificationError = "PASSKEY_VERIFICATION_FAILED"
	ErrCodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// fieldsには問題のあったフィールドをすべて含める。
func NewValidationError(fields []FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "指摘された項目を修正して再度送信してください。",
		Fields:   fields,
	}
}

// NewInvalidEmailError はメールアドレス不正エラーを生成する。
func NewInvalidEmailError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("メールアドレスが無効です: %s", reason),
		Category: "validation",
		Action:   "利用可能なドメインのメールアドレスを入力してください。",
		Fields:   []FieldError{{Field: "email", Message: reason}},
	}
}

// NewVendorNotFoundError はベンダー未検出エラーを生成する。
func NewVendorNotFoundError(vendorID string) *APIError {
	return &APIError{
		Code:     ErrCodeVendorNotFound,
		Message:  fmt.Sprintf("指定されたベンダーが見つかりません: %s", vendorID),
		Category: "vendor",
		Action:   "ベンダーIDを確認してください。",
	}
}

// NewVendorAlreadyExistsError はベンダー名重複エラーを生成する。
func NewVendorAlreadyExistsError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeVendorAlreadyExists,
		Message:  fmt.Sprintf("同名のベンダーが既に登録されています: %s", name),
		Category: "vendor",
		Action:   "別の名前を指定するか、既存のベンダーを編集してください。",
	}
}

// NewAccessRequestNotFoundError はアクセス申請未検出エラーを生成する。
func NewAccessRequestNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeAccessRequestNotFound,
		Message:  fmt.Sprintf("指定されたアクセス申請が見つかりません: %s", id),
		Category: "access",
		Action:   "申請IDを確認してください。",
	}
}

// NewAccessRequestDecidedError は処理済みの申請を再度承認・却下しようとした場合のエラーを生成する。
func NewAccessRequestDecidedError(status AccessRequestStatus) *APIError {
	return &APIError{
		Code:     ErrCodeAccessRequestDecided,
		Message:  fmt.Sprintf("このアクセス申請は既に処理されています: %s", status),
		Category: "access",
		Action:   "申請一覧を再読み込みしてください。",
	}
}

// NewBootstrapDisabledError はユーザーが既に存在する場合のブートストラップ招待エラーを生成する。
func NewBootstrapDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeBootstrapDisabled,
		Message:  "初期管理者の招待は既に無効です。",
		Category: "auth",
		Action:   "既存の管理者に招待を依頼してください。",
	}
}

// NewInviteInvalidError は招待トークンが無効な場合のエラーを生成する。
func NewInviteInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteInvalid,
		Message:  "招待リンクが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "管理者に招待リンクの再発行を依頼してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "アクセス申請を行ってください。",
	}
}

// NewChallengeNotFoundError はWebAuthnチャレンジが存在しないか期限切れの場合のエラーを生成する。
func NewChallengeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  "認証チャレンジが見つからないか、有効期限が切れています。",
		Category: "passkey",
		Action:   "最初からやり直してください。",
	}
}

// NewPasskeyNotFoundError は登録済みパスキーがない場合のエラーを生成する。
func NewPasskeyNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePasskeyNotFound,
		Message:  "このアカウントにはパスキーが登録されていません。",
		Category: "passkey",
		Action:   "招待リンクからパスキーを登録してください。",
	}
}

// NewPasskeyVerificationError はWebAuthn検証失敗エラーを生成する。
func NewPasskeyVerificationError() *APIError {
	return &APIError{
		Code:     ErrCodePasskeyVerificationError,
		Message:  "パスキーの検証に失敗しました。",
		Category: "passkey",
		Action:   "もう一度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
