package service

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/matte"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/util"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// cropThreshold 裁剪时主体像素的最低前景概率
const cropThreshold = 0.5

type Options struct {
	Background matte.Background
	Format     matte.Format
	Crop       bool
}

type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Cached      bool
}

// Remover runs decode → segment → composite → encode for one upload.
type Remover struct {
	segmenter    segment.Segmenter
	cache        ResultCache
	maxSize      int64
	allowedTypes []string
}

func NewRemover(seg segment.Segmenter, cache ResultCache, upload config.UploadConfig) *Remover {
	if cache == nil {
		cache = NopCache{}
	}
	return &Remover{
		segmenter:    seg,
		cache:        cache,
		maxSize:      upload.MaxSize,
		allowedTypes: upload.AllowedTypes,
	}
}

func (r *Remover) Remove(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if err := r.validate(data); err != nil {
		return nil, err
	}
	if opts.Format == "" {
		opts.Format = matte.FormatPNG
	}

	key := cacheKey(util.BytesMD5(data), opts)
	if cached, ok, err := r.cache.Get(ctx, key); err != nil {
		util.Logger.Warn("failed to get cache", zap.String("key", key), zap.Error(err))
	} else if ok {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(cached))
		if err == nil {
			util.Logger.Debug("cache hit", zap.String("key", key))
			return &Result{
				Data:        cached,
				ContentType: opts.Format.ContentType(),
				Width:       cfg.Width,
				Height:      cfg.Height,
				Cached:      true,
			}, nil
		}
		util.Logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
	}

	done := util.Trace("decode")
	img, err := matte.Decode(data)
	done()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	out, err := r.RemoveImage(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	done = util.Trace("encode", zap.String("format", string(opts.Format)))
	err = matte.Encode(&buf, out, opts.Format)
	done()
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, buf.Bytes()); err != nil {
		util.Logger.Warn("failed to set cache", zap.String("key", key), zap.Error(err))
	}

	return &Result{
		Data:        buf.Bytes(),
		ContentType: opts.Format.ContentType(),
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
	}, nil
}

// RemoveImage is the decode-free core: it segments img and composites it
// over opts.Background at img's original size.
func (r *Remover) RemoveImage(ctx context.Context, img image.Image, opts Options) (image.Image, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	mask, err := r.segmenter.Segment(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	done := util.Trace("postprocess")
	defer done()

	mask = matte.ScaleMask(mask, w, h)
	out, err := matte.Composite(img, mask, opts.Background)
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}

	if opts.Crop {
		out = matte.CropToSubject(out, mask, cropThreshold)
	}
	return out, nil
}

func (r *Remover) validate(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if r.maxSize > 0 && int64(len(data)) > r.maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), r.maxSize)
	}

	if len(r.allowedTypes) == 0 {
		return nil
	}
	mtype := mimetype.Detect(data)
	for _, allowed := range r.allowedTypes {
		if mtype.Is(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
}

func (r *Remover) MaxSize() int64 {
	return r.maxSize
}
