package segment

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/matte"
	"github.com/chaos-io/rembg/util"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const BiRefNetModel = "BiRefNet"

type onnxSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *onnxSession) Input() []float32  { return s.input.GetData() }
func (s *onnxSession) Output() []float32 { return s.output.GetData() }
func (s *onnxSession) Run() error        { return s.session.Run() }

func (s *onnxSession) Destroy() error {
	if s.session != nil {
		_ = s.session.Destroy()
	}
	if s.input != nil {
		_ = s.input.Destroy()
	}
	if s.output != nil {
		_ = s.output.Destroy()
	}
	return nil
}

func newONNXSession(cfg config.ModelConfig, device string) (*onnxSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer func() {
		_ = options.Destroy()
	}()

	threads := cfg.NumThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}

	if device == config.DeviceCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("create cuda options: %w", err)
		}
		defer func() {
			_ = cudaOptions.Destroy()
		}()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("append cuda provider: %w", err)
		}
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.Path,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &onnxSession{session: session, input: input, output: output}, nil
}

// ONNXSegmenter runs BiRefNet in-process through onnxruntime. The model is
// loaded once per pooled session at startup and stays resident.
type ONNXSegmenter struct {
	pool   *Pool
	size   int
	device string
}

func NewONNXSegmenter(cfg config.ModelConfig) (*ONNXSegmenter, error) {
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	pool, device, err := openPool(cfg, func(device string) Factory {
		return func() (Session, error) {
			return newONNXSession(cfg, device)
		}
	})
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, err
	}

	util.Logger.Info("segmentation model loaded",
		zap.String("model", BiRefNetModel),
		zap.String("path", cfg.Path),
		zap.String("device", device),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("input_size", cfg.InputSize))

	return &ONNXSegmenter{pool: pool, size: cfg.InputSize, device: device}, nil
}

// openPool 按配置选择设备：auto 优先 CUDA，不可用时退回 CPU
func openPool(cfg config.ModelConfig, factoryFor func(device string) Factory) (*Pool, string, error) {
	switch cfg.Device {
	case config.DeviceCPU, config.DeviceCUDA:
		pool, err := NewPool(factoryFor(cfg.Device), cfg.PoolSize, cfg.AcquireTimeout)
		if err != nil {
			return nil, "", fmt.Errorf("open %s sessions: %w", cfg.Device, err)
		}
		return pool, cfg.Device, nil
	case config.DeviceAuto, "":
		pool, err := NewPool(factoryFor(config.DeviceCUDA), cfg.PoolSize, cfg.AcquireTimeout)
		if err == nil {
			return pool, config.DeviceCUDA, nil
		}
		util.Logger.Warn("cuda unavailable, falling back to cpu", zap.Error(err))

		pool, err = NewPool(factoryFor(config.DeviceCPU), cfg.PoolSize, cfg.AcquireTimeout)
		if err != nil {
			return nil, "", fmt.Errorf("open cpu sessions: %w", err)
		}
		return pool, config.DeviceCPU, nil
	default:
		return nil, "", fmt.Errorf("unknown device %q", cfg.Device)
	}
}

func (s *ONNXSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	return segmentWithPool(ctx, s.pool, img, s.size)
}

func segmentWithPool(ctx context.Context, pool *Pool, img image.Image, size int) (*image.Gray, error) {
	session, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	func() {
		defer util.Trace("preprocess")()
		matte.FillTensor(session.Input(), img, size)
	}()

	done := util.Trace("inference")
	err = session.Run()
	done()
	if err != nil {
		pool.Discard(session, err)
		return nil, fmt.Errorf("model inference: %w", err)
	}

	// 输出 buffer 归还前必须读完
	mask, err := matte.MaskFromLogits(session.Output(), size, size)
	pool.Release(session)
	if err != nil {
		return nil, fmt.Errorf("process prediction: %w", err)
	}
	return mask, nil
}

func (s *ONNXSegmenter) Maintain() (int, error) {
	return s.pool.Replenish()
}

func (s *ONNXSegmenter) Stats() Stats {
	m := s.pool.Metrics()
	return Stats{Backend: config.BackendONNX, Device: s.device, Pool: &m}
}

func (s *ONNXSegmenter) Close() error {
	s.pool.Close()
	return ort.DestroyEnvironment()
}
