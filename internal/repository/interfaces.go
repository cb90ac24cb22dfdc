// Package repository はデータ永続化のインターフェースを定義する。
//
// 有権者・候補者・投票の正は台帳にあり、ここで扱うのはセッションと
// アップロードファイルのメタデータのみ。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/evote/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByToken は指定トークンのセッションを取得する。
	// 見つからない場合、期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	// DeleteByToken は指定トークンのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByToken(ctx context.Context, token string) error
	// PurgeExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// AssetRepository はアップロードファイルのメタデータの永続化インターフェース。
type AssetRepository interface {
	// Create はメタデータを記録する。
	Create(ctx context.Context, asset *model.UploadedAsset) error
	// FindByStoredName は保存名でメタデータを取得する。見つからない場合はnilを返す。
	FindByStoredName(ctx context.Context, storedName string) (*model.UploadedAsset, error)
}
