// Package auth は台帳IDによる有権者登録・ログインとセッション管理を提供する。
//
// セッションに保持するIDは、常に台帳のgetUserで解決した値のスナップショットとし、
// クライアントが申告した値をそのまま信用しない。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/hitoshi/evote/internal/ledger"
	"github.com/hitoshi/evote/internal/metrics"
	"github.com/hitoshi/evote/internal/model"
	"github.com/hitoshi/evote/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は有権者の登録・認証とセッションに関するビジネスロジックを提供する。
type Service struct {
	registry    ledger.IdentityRegistry
	pool        *IdentityPool
	sessionRepo repository.SessionRepository
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	registry ledger.IdentityRegistry,
	pool *IdentityPool,
	sessionRepo repository.SessionRepository,
	m metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		registry:    registry,
		pool:        pool,
		sessionRepo: sessionRepo,
		metrics:     m,
		config:      config,
		now:         time.Now,
	}
}

// Register は台帳アドレスを払い出して有権者を登録し、セッションを発行する。
func (s *Service) Register(ctx context.Context, name, mobile, credential string) (*model.Session, *model.RegistrationReceipt, error) {
	session, receipt, err := s.register(ctx, strings.TrimSpace(name), strings.TrimSpace(mobile), strings.TrimSpace(credential))
	s.metrics.RecordRegistration(metrics.Outcome(err))
	return session, receipt, err
}

func (s *Service) register(ctx context.Context, name, mobile, credential string) (*model.Session, *model.RegistrationReceipt, error) {
	var merr *multierror.Error
	merr = model.RequireFields(merr, "name", name, "mobile", mobile, "aadhar", credential)
	if err := model.ValidationErrorFrom(merr); err != nil {
		return nil, nil, err
	}

	addr, err := s.pool.Allocate()
	if err != nil {
		slog.Warn("identity pool exhausted")
		return nil, nil, err
	}

	receipt, err := s.registry.RegisterUser(ctx, addr, name, mobile, credential)
	if err != nil {
		slog.Error("failed to register user on ledger",
			slog.String("ledger_address", addr.Hex()),
			slog.String("error", err.Error()),
		)
		return nil, nil, ledger.Normalize(err)
	}

	session, err := s.ResolveAndBind(ctx, credential, addr)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user registered",
		slog.String("ledger_address", addr.Hex()),
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return session, &model.RegistrationReceipt{
		LedgerAddress:   addr.Hex(),
		TransactionHash: receipt.TxHash.Hex(),
	}, nil
}

// Login は登録番号と台帳アドレスで認証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, credential, address string) (*model.Session, error) {
	session, err := s.login(ctx, strings.TrimSpace(credential), strings.TrimSpace(address))
	s.metrics.RecordLogin(metrics.Outcome(err))
	return session, err
}

func (s *Service) login(ctx context.Context, credential, address string) (*model.Session, error) {
	var merr *multierror.Error
	merr = model.RequireFields(merr, "aadhar", credential, "ethAddress", address)
	if address != "" && !common.IsHexAddress(address) {
		merr = multierror.Append(merr, &model.FieldError{Field: "ethAddress", Reason: "invalid address"})
	}
	if err := model.ValidationErrorFrom(merr); err != nil {
		return nil, err
	}

	addr := common.HexToAddress(address)
	ok, err := s.registry.LoginUser(ctx, credential, addr)
	if err != nil {
		slog.Error("failed to verify login on ledger",
			slog.String("ledger_address", addr.Hex()),
			slog.String("error", err.Error()),
		)
		return nil, ledger.Normalize(err)
	}
	if !ok {
		slog.Info("login rejected by ledger", slog.String("ledger_address", addr.Hex()))
		return nil, model.NewInvalidCredentialsError()
	}

	return s.ResolveAndBind(ctx, credential, addr)
}

// ResolveAndBind は申告されたアドレスを台帳で解決し、一致した場合に新しいセッションを発行する。
// 解決したアドレスまたは登録番号が申告値と異なる場合はIdentityMismatchErrorを返す。
func (s *Service) ResolveAndBind(ctx context.Context, credential string, claimed common.Address) (*model.Session, error) {
	user, err := s.registry.GetUser(ctx, claimed)
	if err != nil {
		slog.Error("failed to resolve identity on ledger",
			slog.String("ledger_address", claimed.Hex()),
			slog.String("error", err.Error()),
		)
		return nil, ledger.Normalize(err)
	}
	if user.Address != claimed || user.Credential != credential {
		slog.Warn("identity mismatch",
			slog.String("claimed_address", claimed.Hex()),
			slog.String("resolved_address", user.Address.Hex()),
		)
		return nil, model.NewIdentityMismatchError()
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	session := &model.Session{
		Token: token,
		Identity: model.Identity{
			DisplayName:            user.Name,
			ContactNumber:          user.Mobile,
			RegistrationCredential: user.Credential,
			LedgerAddress:          user.Address.Hex(),
		},
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session bound", slog.String("ledger_address", session.Identity.LedgerAddress))
	return session, nil
}

// RequireSession はトークンに紐づくセッションを返す。
// 紐づくセッションがない場合（空・不明・破棄済み・期限切れ）はUnauthenticatedErrorを返す。
func (s *Service) RequireSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Expired(s.now()) {
		return nil, model.NewUnauthenticatedError()
	}
	return session, nil
}

// Peek はトークンに紐づくセッションを返す。見つからない場合や取得に失敗した場合はnil。
func (s *Service) Peek(ctx context.Context, token string) *model.Session {
	session, err := s.RequireSession(ctx, token)
	if err != nil {
		if !model.IsCode(err, model.ErrCodeUnauthenticated) {
			slog.Warn("failed to peek session", slog.String("error", err.Error()))
		}
		return nil
	}
	return session
}

// Destroy はセッションを破棄する。何度呼び出してもエラーにならない。
func (s *Service) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("session destroyed")
	return nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
