package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/hitoshi/evote/internal/database"
	"github.com/hitoshi/evote/internal/model"
)

// openTestDB はTEST_DATABASE_URLのデータベースにマイグレーションを適用して返す。
// 未設定の場合はスキップする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	db, err := database.Open(context.Background(), url, database.DefaultPoolConfig)
	if err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.RunMigrations(url); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE sessions, uploaded_assets`); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	return db
}

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	alive := newTestSession("alive", now.Add(time.Hour))
	alive.CreatedAt = now
	if err := repo.Create(ctx, alive); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	expired := newTestSession("expired", now.Add(-time.Hour))
	expired.CreatedAt = now
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.FindByToken(ctx, "alive")
	if err != nil {
		t.Fatalf("FindByToken returned error: %v", err)
	}
	if got == nil || got.Identity != alive.Identity {
		t.Fatalf("FindByToken = %+v, want identity %+v", got, alive.Identity)
	}

	if got, _ := repo.FindByToken(ctx, "expired"); got != nil {
		t.Error("expired session should not be returned")
	}

	n, err := repo.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	if err := repo.DeleteByToken(ctx, "alive"); err != nil {
		t.Fatalf("DeleteByToken returned error: %v", err)
	}
	if got, _ := repo.FindByToken(ctx, "alive"); got != nil {
		t.Error("session should be deleted")
	}
}

func TestPostgresAssetRepo_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresAssetRepo(db)
	ctx := context.Background()

	asset := &model.UploadedAsset{
		StoredName:    "1700000000000-2.pdf",
		OriginalName:  "manifesto.pdf",
		MediaKind:     model.MediaKindDocument,
		StorageBucket: "docs",
		ContentType:   "application/pdf",
		Size:          2048,
		Checksum:      "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Create(ctx, asset); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.FindByStoredName(ctx, asset.StoredName)
	if err != nil {
		t.Fatalf("FindByStoredName returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected asset, got nil")
	}
	if got.MediaKind != model.MediaKindDocument || got.Size != 2048 || got.Checksum != asset.Checksum {
		t.Errorf("got %+v", got)
	}
}
