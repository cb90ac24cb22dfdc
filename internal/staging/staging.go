// Package staging は候補者登録時のアップロードファイルを分類・保存する。
package staging

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/hitoshi/evote/internal/metrics"
	"github.com/hitoshi/evote/internal/model"
	"github.com/hitoshi/evote/internal/repository"
)

// 保存先バケット
const (
	BucketImages = "images"
	BucketDocs   = "docs"
)

// maxNameAttempts は保存名が衝突した場合に次の連番を試す上限。
const maxNameAttempts = 16

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// File はステージング対象のアップロードファイル。
type File struct {
	OriginalName string
	ContentType  string // クライアントが申告したMIMEタイプ
	Content      io.Reader
}

// Files は候補者登録で受け取る2つのファイル。
type Files struct {
	Photo     *File
	Manifesto *File
}

// Result はステージング結果。ファイル名は台帳に記録する保存名。
type Result struct {
	PhotoFileName     string
	ManifestoFileName string
	Assets            []*model.UploadedAsset
}

// Stager はアップロードファイルを <root>/<bucket>/<保存名> に保存する。
type Stager struct {
	root    string
	assets  repository.AssetRepository
	metrics metrics.MetricsCollector
	now     func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewStager はStagerを生成する。バケットは最初の保存時に作成する。
func NewStager(root string, assets repository.AssetRepository, m metrics.MetricsCollector) *Stager {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Stager{
		root:    root,
		assets:  assets,
		metrics: m,
		now:     time.Now,
	}
}

// BucketFor はMediaKindに対応する保存先バケットを返す。
func BucketFor(kind model.MediaKind) string {
	if kind == model.MediaKindImage {
		return BucketImages
	}
	return BucketDocs
}

// Stage は写真とマニフェストを保存する。
// どちらかが欠けている場合は何も書き込まずにMissingFileErrorを返す。
// 保存後に後続処理が失敗してもファイルは削除しない。
func (s *Stager) Stage(ctx context.Context, files Files) (*Result, error) {
	if files.Photo == nil || files.Photo.Content == nil {
		return nil, model.NewMissingFileError("photo")
	}
	if files.Manifesto == nil || files.Manifesto.Content == nil {
		return nil, model.NewMissingFileError("manifesto")
	}

	photo, err := s.stageFile(ctx, files.Photo)
	if err != nil {
		return nil, err
	}
	manifesto, err := s.stageFile(ctx, files.Manifesto)
	if err != nil {
		return nil, err
	}

	return &Result{
		PhotoFileName:     photo.StoredName,
		ManifestoFileName: manifesto.StoredName,
		Assets:            []*model.UploadedAsset{photo, manifesto},
	}, nil
}

func (s *Stager) stageFile(ctx context.Context, f *File) (*model.UploadedAsset, error) {
	kind := model.ClassifyMediaKind(f.ContentType)
	bucket := BucketFor(kind)
	dir := filepath.Join(s.root, bucket)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("failed to create upload bucket",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageUnavailableError(bucket)
	}

	out, name, err := s.create(dir, safeExt(f.OriginalName))
	if err != nil {
		slog.Error("failed to create upload file",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageUnavailableError(bucket)
	}
	path := filepath.Join(dir, name)

	hasher, err := blake2b.New256(nil)
	if err != nil {
		out.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create checksum hasher: %w", err)
	}

	size, err := io.Copy(io.MultiWriter(out, hasher), f.Content)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		slog.Error("failed to write upload file",
			slog.String("bucket", bucket),
			slog.String("stored_name", name),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageUnavailableError(bucket)
	}

	asset := &model.UploadedAsset{
		StoredName:    name,
		OriginalName:  filepath.Base(f.OriginalName),
		MediaKind:     kind,
		StorageBucket: bucket,
		ContentType:   f.ContentType,
		Size:          size,
		Checksum:      hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:     s.now(),
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to record uploaded asset: %w", err)
	}
	s.metrics.RecordUpload(bucket, size)

	slog.Info("upload staged",
		slog.String("bucket", bucket),
		slog.String("stored_name", name),
		slog.Int64("size", size),
	)
	return asset, nil
}

// create は未使用の保存名でファイルを排他的に作成する。
// 既存ファイルと衝突した場合は次の連番で再試行する。
func (s *Stager) create(dir, ext string) (*os.File, string, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := s.nextName(ext)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no unique file name available in %s", dir)
}

// nextName は <UNIXミリ秒>-<連番><拡張子> 形式の保存名を返す。
func (s *Stager) nextName(ext string) string {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return fmt.Sprintf("%d-%d%s", s.now().UnixMilli(), seq, ext)
}

// safeExt は元ファイル名の拡張子を返す。英数字以外を含む場合は空文字。
func safeExt(originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}
