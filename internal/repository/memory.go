package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/evote/internal/model"
)

// MemorySessionRepo はプロセス内メモリに保持するセッションリポジトリ。
// DATABASE_URL未設定時に使用する。プロセス再起動でセッションは失われる。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]model.Session)}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Token] = *session
	return nil
}

// FindByToken は指定トークンのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByToken(_ context.Context, token string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	if !ok || s.Expired(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

// DeleteByToken は指定トークンのセッションを削除する。
func (r *MemorySessionRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

// PurgeExpired は期限切れセッションを削除する。
func (r *MemorySessionRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, token)
			n++
		}
	}
	return n, nil
}

// MemoryAssetRepo はプロセス内メモリに保持するアップロードファイルメタデータのリポジトリ。
type MemoryAssetRepo struct {
	mu     sync.RWMutex
	assets map[string]model.UploadedAsset
}

// NewMemoryAssetRepo はMemoryAssetRepoを生成する。
func NewMemoryAssetRepo() *MemoryAssetRepo {
	return &MemoryAssetRepo{assets: make(map[string]model.UploadedAsset)}
}

// Create はメタデータを記録する。
func (r *MemoryAssetRepo) Create(_ context.Context, asset *model.UploadedAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[asset.StoredName] = *asset
	return nil
}

// FindByStoredName は保存名でメタデータを取得する。
func (r *MemoryAssetRepo) FindByStoredName(_ context.Context, storedName string) (*model.UploadedAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[storedName]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

var (
	_ SessionRepository = (*MemorySessionRepo)(nil)
	_ AssetRepository   = (*MemoryAssetRepo)(nil)
)
