package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/evote/internal/middleware"
	"github.com/hitoshi/evote/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, mobile, credential string) (*model.Session, *model.RegistrationReceipt, error)
	Login(ctx context.Context, credential, address string) (*model.Session, error)
	Destroy(ctx context.Context, token string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int    // セッションCookieの有効期間（秒）
	LoginPath     string // ログアウト後のリダイレクト先
}

// AuthHandler は有権者登録・ログイン・セッション関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type registerResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	EthereumAddress string `json:"ethereumAddress"`
	Transaction     string `json:"transaction"`
}

type loginResponse struct {
	Message         string `json:"message"`
	EthereumAddress string `json:"ethereumAddress"`
}

// sessionUserResponse はセッションに保持する有権者情報。登録番号は返さない。
type sessionUserResponse struct {
	Name        string `json:"name"`
	Mobile      string `json:"mobile"`
	UserAddress string `json:"userAddress"`
}

type checkSessionResponse struct {
	LoggedIn bool                 `json:"loggedIn"`
	User     *sessionUserResponse `json:"user,omitempty"`
}

// Register は有権者を登録し、セッションを発行する。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	fields, err := requestFields(w, r, "name", "mobile", "aadhar")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, receipt, err := h.service.Register(r.Context(), fields["name"], fields["mobile"], fields["aadhar"])
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.replaceSession(w, r, session)
	writeJSON(w, http.StatusOK, registerResponse{
		Success:         true,
		Message:         "User registered successfully!",
		EthereumAddress: receipt.LedgerAddress,
		Transaction:     receipt.TransactionHash,
	})
}

// Login は登録番号と台帳アドレスで認証し、セッションを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	fields, err := requestFields(w, r, "aadhar", "ethAddress")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Login(r.Context(), fields["aadhar"], fields["ethAddress"])
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.replaceSession(w, r, session)
	writeJSON(w, http.StatusOK, loginResponse{
		Message:         "Login successful!",
		EthereumAddress: session.Identity.LedgerAddress,
	})
}

// Logout はセッションを破棄し、ログインページへリダイレクトする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Destroy(r.Context(), middleware.SessionTokenFromRequest(r)); err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, h.config.LoginPath, http.StatusFound)
}

// CheckSession はセッションの有無と有権者情報を返す。
// GET /check-session
func (h *AuthHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeJSON(w, http.StatusOK, checkSessionResponse{LoggedIn: false})
		return
	}
	writeJSON(w, http.StatusOK, checkSessionResponse{
		LoggedIn: true,
		User:     toSessionUserResponse(session),
	})
}

// replaceSession は新しいセッションのCookieを設定し、以前のセッションがあれば破棄する。
func (h *AuthHandler) replaceSession(w http.ResponseWriter, r *http.Request, session *model.Session) {
	if old := middleware.SessionTokenFromRequest(r); old != "" && old != session.Token {
		// 破棄に失敗しても古いセッションは期限切れで無効になる
		_ = h.service.Destroy(r.Context(), old)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toSessionUserResponse(session *model.Session) *sessionUserResponse {
	return &sessionUserResponse{
		Name:        session.Identity.DisplayName,
		Mobile:      session.Identity.ContactNumber,
		UserAddress: session.Identity.LedgerAddress,
	}
}
