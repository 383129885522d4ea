package util

import (
	"context"
	"fmt"
	"os"
	"strings"

	nhttp "github.com/chaos-io/rembg/util/http"
)

// DownloadImage 下载图片，返回原始字节
func DownloadImage(ctx context.Context, cli nhttp.IClient, url string) ([]byte, error) {
	var data []byte
	err := cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: url,
		Method:     "GET",
		Response:   &data,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return data, nil
}

// ReadImage 读取本地图片或 http(s) 图片
func ReadImage(ctx context.Context, cli nhttp.IClient, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return DownloadImage(ctx, cli, source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
