// Command rembg removes the background of a single image without starting
// the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/matte"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/service"
	"github.com/chaos-io/rembg/util"
	nhttp "github.com/chaos-io/rembg/util/http"
	"go.uber.org/zap"
)

func main() {
	var (
		in         = flag.String("in", "", "input image path or http(s) URL")
		out        = flag.String("out", "", "output file (default <input>_nobg.<format>)")
		colorValue = flag.String("color", matte.Transparent, "background: transparent or a hex color such as #ffffff")
		format     = flag.String("format", string(matte.FormatPNG), "output format: png or webp")
		crop       = flag.Bool("crop", false, "trim the output to the subject")
		configPath = flag.String("config", "config.yaml", "path to the config file")
	)
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *in, *out, *colorValue, *format, *crop); err != nil {
		fmt.Fprintln(os.Stderr, "rembg:", err)
		os.Exit(1)
	}
}

func run(configPath, in, out, colorValue, formatValue string, crop bool) error {
	bg, err := matte.ParseBackground(colorValue)
	if err != nil {
		return err
	}
	format, err := matte.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	cfg := config.New(configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer util.Sync()

	ctx := context.Background()
	data, err := util.ReadImage(ctx, nhttp.NewHTTPClient(), in)
	if err != nil {
		return err
	}

	seg, err := segment.New(cfg.Model)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer func() {
		_ = seg.Close()
	}()

	// 离线处理不限制文件大小
	upload := cfg.Upload
	upload.MaxSize = 0
	remover := service.NewRemover(seg, nil, upload)

	res, err := remover.Remove(ctx, data, service.Options{
		Background: bg,
		Format:     format,
		Crop:       crop,
	})
	if err != nil {
		return err
	}

	if out == "" {
		out = outputPath(in, format)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	util.Logger.Info("done",
		zap.String("output", out),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.String("background", bg.String()))
	return nil
}

// outputPath 由输入名推导输出名，URL 取最后一段
func outputPath(in string, format matte.Format) string {
	base := in
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "image"
	}
	return base + "_nobg." + string(format)
}
