package handler

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/evote/internal/model"
)

// uploadsCSP はアップロードファイルの応答に付与するCSP。
const uploadsCSP = "default-src 'none'; sandbox"

// AssetFinder はアップロード済みファイルの記録を検索するインターフェース。
// repository.AssetRepositoryの部分集合として定義する。
type AssetFinder interface {
	FindByStoredName(ctx context.Context, storedName string) (*model.UploadedAsset, error)
}

// AssetHandler はステージング済みファイルを配信するHTTPハンドラー。
// 記録のあるファイルだけを配信し、ディレクトリ一覧は返さない。
type AssetHandler struct {
	finder AssetFinder
	root   string
}

// NewAssetHandler はAssetHandlerを生成する。
func NewAssetHandler(finder AssetFinder, root string) *AssetHandler {
	return &AssetHandler{finder: finder, root: root}
}

// Serve はアップロード済みファイルを返す。
// インライン表示はラスター画像に限り、それ以外は添付ファイルとして返す。
// GET /uploads/{bucket}/{name}
func (h *AssetHandler) Serve(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	name := chi.URLParam(r, "name")

	asset, err := h.finder.FindByStoredName(r.Context(), name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if asset == nil || asset.StorageBucket != bucket {
		handleServiceError(w, r, model.NewAssetNotFoundError())
		return
	}

	w.Header().Set("Content-Security-Policy", uploadsCSP)
	if asset.MediaKind == model.MediaKindImage && model.IsInlineImageType(asset.ContentType) {
		w.Header().Set("Content-Type", asset.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", "attachment")
	}
	http.ServeFile(w, r, filepath.Join(h.root, asset.StorageBucket, asset.StoredName))
}
