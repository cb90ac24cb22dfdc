package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/evote/internal/model"
)

// PostgresAssetRepo はPostgreSQLを使用したアップロードファイルメタデータのリポジトリ。
type PostgresAssetRepo struct {
	db *sql.DB
}

// NewPostgresAssetRepo はPostgresAssetRepoを生成する。
func NewPostgresAssetRepo(db *sql.DB) *PostgresAssetRepo {
	return &PostgresAssetRepo{db: db}
}

// Create はメタデータを記録する。
func (r *PostgresAssetRepo) Create(ctx context.Context, asset *model.UploadedAsset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO uploaded_assets (stored_name, original_name, media_kind, storage_bucket, content_type, size_bytes, checksum, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asset.StoredName, asset.OriginalName, string(asset.MediaKind), asset.StorageBucket,
		asset.ContentType, asset.Size, asset.Checksum, asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create uploaded asset: %w", err)
	}
	return nil
}

// FindByStoredName は保存名でメタデータを取得する。
func (r *PostgresAssetRepo) FindByStoredName(ctx context.Context, storedName string) (*model.UploadedAsset, error) {
	asset := &model.UploadedAsset{}
	var kind string
	err := r.db.QueryRowContext(ctx,
		`SELECT stored_name, original_name, media_kind, storage_bucket, content_type, size_bytes, checksum, created_at
		 FROM uploaded_assets
		 WHERE stored_name = $1`,
		storedName,
	).Scan(&asset.StoredName, &asset.OriginalName, &kind, &asset.StorageBucket,
		&asset.ContentType, &asset.Size, &asset.Checksum, &asset.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find uploaded asset: %w", err)
	}
	asset.MediaKind = model.MediaKind(kind)
	return asset, nil
}

// compile-time interface check
var _ AssetRepository = (*PostgresAssetRepo)(nil)
