// Package storage は機会画像の保存と配信を提供する。
// 画像バイナリはPostgreSQLのbytea列に保存し、公開URLは /storage/opportunity-images/{id} になる。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // GIFデコーダー登録
	_ "image/jpeg" // JPEGデコーダー登録
	_ "image/png"  // PNGデコーダー登録
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // WebPデコーダー登録

	"github.com/africashands/platform/internal/model"
)

const (
	// DefaultMaxBytes は画像サイズ上限の既定値（5MiB）。
	DefaultMaxBytes = 5 * 1024 * 1024

	// PublicPathPrefix は画像配信URLのパス接頭辞。
	PublicPathPrefix = "/storage/opportunity-images/"

	// maxDimension は幅・高さの上限。展開後のメモリ消費を抑える。
	maxDimension = 8000
)

// formatMimeTypes はimageパッケージの形式名とMIMEタイプの対応。
var formatMimeTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ImageStore は画像の永続化インターフェース。
type ImageStore interface {
	Create(ctx context.Context, img *model.OpportunityImage) error
	FindByID(ctx context.Context, id string) (*model.OpportunityImage, error)
}

// OpportunityStore は画像を添付する機会の操作。
type OpportunityStore interface {
	FindByID(ctx context.Context, id string) (*model.Opportunity, error)
	UpdateImageURL(ctx context.Context, id, imageURL string) error
}

// Uploaded はアップロード結果。
type Uploaded struct {
	ID       string
	URL      string
	MimeType string
	Width    int
	Height   int
	Size     int
}

// Service は機会画像のストレージ。
type Service struct {
	images   ImageStore
	opps     OpportunityStore
	maxBytes int64
	now      func() time.Time
}

// NewService はServiceを生成する。maxBytesが0以下の場合はDefaultMaxBytesを使用する。
func NewService(images ImageStore, opps OpportunityStore, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		images:   images,
		opps:     opps,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// MaxBytes は受け付ける画像サイズの上限を返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// URL は画像IDの公開URLを返す。
func URL(id string) string {
	return PublicPathPrefix + id
}

// Upload は画像を検証して保存し、機会の画像URLを更新する。管理者のみ実行できる。
// 検証内容: サイズ上限、ヘッダーのデコード（PNG, JPEG, GIF, WebP）、寸法の上限。
func (s *Service) Upload(ctx context.Context, actor model.Actor, opportunityID, filename string, r io.Reader) (*Uploaded, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}

	opp, err := s.opps.FindByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find opportunity: %w", err)
	}
	if opp == nil {
		return nil, model.NewOpportunityNotFoundError(opportunityID)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, model.NewImageTooLargeError(s.maxBytes)
	}

	cfg, mimeType, err := detect(data)
	if err != nil {
		slog.Warn("image upload rejected",
			slog.String("opportunity_id", opportunityID),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidImageError()
	}

	img := &model.OpportunityImage{
		ID:            uuid.New().String(),
		OpportunityID: opportunityID,
		Filename:      cleanFilename(filename),
		MimeType:      mimeType,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Data:          data,
		CreatedAt:     s.now(),
	}
	if err := s.images.Create(ctx, img); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	publicURL := URL(img.ID)
	if err := s.opps.UpdateImageURL(ctx, opportunityID, publicURL); err != nil {
		return nil, fmt.Errorf("failed to attach image: %w", err)
	}

	slog.Info("image uploaded",
		slog.String("image_id", img.ID),
		slog.String("opportunity_id", opportunityID),
		slog.String("mime_type", mimeType),
		slog.Int("size", len(data)),
		slog.String("actor_id", actor.UserID),
	)
	return &Uploaded{
		ID:       img.ID,
		URL:      publicURL,
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Size:     len(data),
	}, nil
}

// Open は画像を取得する。存在しない場合はIMAGE_NOT_FOUNDを返す。
func (s *Service) Open(ctx context.Context, id string) (*model.OpportunityImage, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewImageNotFoundError()
	}
	img, err := s.images.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	if img == nil {
		return nil, model.NewImageNotFoundError()
	}
	return img, nil
}

// detect は画像ヘッダーをデコードして形式と寸法を判定する。
func detect(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode image header: %w", err)
	}
	mimeType, ok := formatMimeTypes[format]
	if !ok {
		return image.Config{}, "", fmt.Errorf("unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxDimension || cfg.Height > maxDimension {
		return image.Config{}, "", fmt.Errorf("image dimensions %dx%d out of range", cfg.Width, cfg.Height)
	}
	return cfg, mimeType, nil
}

// cleanFilename はパス要素を除いたファイル名を返す。
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return "image"
	}
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
