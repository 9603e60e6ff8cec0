package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, tenant, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTenantNotFound     = "TENANT_NOT_FOUND"
	ErrCodeTenantInactive     = "TENANT_INACTIVE"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeScopeViolation     = "SCOPE_VIOLATION"
	ErrCodeForbiddenLevel     = "FORBIDDEN_LEVEL"
	ErrCodeConnectionError    = "CONNECTION_ERROR"
	ErrCodeWorkAreaNotFound   = "WORK_AREA_NOT_FOUND"
	ErrCodeProjectNotFound    = "PROJECT_NOT_FOUND"
	ErrCodePersonnelNotFound  = "PERSONNEL_NOT_FOUND"
	ErrCodeDuplicateSubdomain = "DUPLICATE_SUBDOMAIN"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
)

// NewTenantNotFoundError は未登録サブドメインに対するエラーを生成する。
func NewTenantNotFoundError(subdomain string) *APIError {
	return &APIError{
		Code:     ErrCodeTenantNotFound,
		Message:  fmt.Sprintf("指定されたテナントが見つかりません: %s", subdomain),
		Category: "tenant",
		Action:   "アクセス先のURLが正しいか確認してください。",
	}
}

// NewTenantInactiveError は無効化済みテナントに対するエラーを生成する。
func NewTenantInactiveError(subdomain string) *APIError {
	return &APIError{
		Code:     ErrCodeTenantInactive,
		Message:  fmt.Sprintf("このテナントは無効化されています: %s", subdomain),
		Category: "tenant",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewUnauthenticatedError は認証失敗エラーを生成する。
// トークンの欠落・改ざん・期限切れのいずれでも同一のレスポンスを返す。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "有効なトークンで再度ログインしてください。",
	}
}

// NewScopeViolationError はスコープ外の作業エリアへのアクセスエラーを生成する。
// 内部記録用。クライアントへの提示はWorkAreaNotFoundと同一形にする
// （存在推測の防止のため）。
func NewScopeViolationError(workAreaID int64) *APIError {
	return &APIError{
		Code:     ErrCodeScopeViolation,
		Message:  fmt.Sprintf("作業エリアへのアクセス権がありません: %d", workAreaID),
		Category: "auth",
		Action:   "担当する作業エリアを確認してください。",
	}
}

// NewForbiddenLevelError は認可レベル不足エラーを生成する。
func NewForbiddenLevelError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenLevel,
		Message:  "この操作にはCORPORATEレベルの権限が必要です。",
		Category: "auth",
		Action:   "権限を持つ管理者に依頼してください。",
	}
}

// NewConnectionError はテナントデータベース接続エラーを生成する。
func NewConnectionError() *APIError {
	return &APIError{
		Code:     ErrCodeConnectionError,
		Message:  "テナントデータベースへの接続に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewWorkAreaNotFoundError は作業エリア未検出エラーを生成する。
func NewWorkAreaNotFoundError(workAreaID int64) *APIError {
	return &APIError{
		Code:     ErrCodeWorkAreaNotFound,
		Message:  fmt.Sprintf("指定された作業エリアが見つかりません: %d", workAreaID),
		Category: "validation",
		Action:   "作業エリアIDを確認してください。",
	}
}

// NewProjectNotFoundError はプロジェクト未検出エラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("指定されたプロジェクトが見つかりません: %s", projectID),
		Category: "validation",
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewPersonnelNotFoundError は要員未検出エラーを生成する。
func NewPersonnelNotFoundError(personnelID string) *APIError {
	return &APIError{
		Code:     ErrCodePersonnelNotFound,
		Message:  fmt.Sprintf("指定された要員が見つかりません: %s", personnelID),
		Category: "validation",
		Action:   "要員IDを確認してください。",
	}
}

// NewDuplicateSubdomainError はサブドメイン重複エラーを生成する。
func NewDuplicateSubdomainError(subdomain string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSubdomain,
		Message:  fmt.Sprintf("このサブドメインは既に使用されています: %s", subdomain),
		Category: "validation",
		Action:   "別のサブドメインを指定してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
