package model

import (
	"strings"
	"time"
)

// MediaKind はアップロードファイルの分類を表す。
type MediaKind string

const (
	// MediaKindImage は画像ファイル（image/*）。
	MediaKindImage MediaKind = "image"
	// MediaKindDocument は画像以外のファイル。
	MediaKindDocument MediaKind = "document"
)

// ClassifyMediaKind は宣言されたContent-TypeからMediaKindを判定する。
func ClassifyMediaKind(contentType string) MediaKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return MediaKindImage
	}
	return MediaKindDocument
}

// inlineImageTypes はブラウザにそのまま表示させてよいラスター画像の形式。
// image/svg+xml のようにスクリプトを含み得る形式は含めない。
var inlineImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// IsInlineImageType はContent-Typeがインライン表示可能な画像形式かを返す。
func IsInlineImageType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return inlineImageTypes[mediaType]
}

// UploadedAsset はステージング済みのアップロードファイルを表す。
// 作成後に変更されることはなく、削除は外部の保持ポリシーに委ねる。
type UploadedAsset struct {
	StoredName    string
	OriginalName  string
	MediaKind     MediaKind
	StorageBucket string
	ContentType   string
	Size          int64
	Checksum      string // BLAKE2b-256（16進）
	CreatedAt     time.Time
}
