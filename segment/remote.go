package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"time"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/matte"
	nhttp "github.com/chaos-io/rembg/util/http"
)

// RemoteSegmenter delegates inference to an HTTP service hosting BiRefNet.
//
//	curl -X POST "$URL" -F "image=@my_image.png"
//
// The service answers with the matte as a grayscale PNG.
type RemoteSegmenter struct {
	url     string
	timeout time.Duration
	cli     nhttp.IClient
}

func NewRemoteSegmenter(url string, timeout time.Duration, cli nhttp.IClient) *RemoteSegmenter {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &RemoteSegmenter{url: url, timeout: timeout, cli: cli}
}

func (r *RemoteSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: r.url,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &data,
		Timeout:    r.timeout,
	}
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	maskImg, err := matte.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode remote mask: %w", err)
	}
	return matte.ToGray(maskImg), nil
}

func (r *RemoteSegmenter) Stats() Stats {
	return Stats{Backend: config.BackendRemote, Device: r.url}
}

func (r *RemoteSegmenter) Close() error {
	return nil
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.ModelConfig) (Segmenter, error) {
	switch cfg.Backend {
	case config.BackendONNX:
		return NewONNXSegmenter(cfg)
	case config.BackendRemote:
		return NewRemoteSegmenter(cfg.RemoteURL, cfg.RemoteTimeout, nil), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}
