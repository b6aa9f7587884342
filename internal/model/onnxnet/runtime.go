// Package onnxnet 用 ONNX Runtime 执行导出的 Tacotron 2 计算图。
//
// 检查点的 state_dict 需要包含三张图：
//
//	encoder       sequences[1,L] int64, sequence_lengths[1] int64
//	              → memory[1,L,E], processed_memory[1,L,A]
//	decoder_iter  decoder_input[1,n_mel*r], attention_hidden, attention_cell,
//	              decoder_hidden, decoder_cell, attention_weights[1,L],
//	              attention_weights_cum[1,L], attention_context[1,E],
//	              memory, processed_memory, 可选 mask[1,L] bool
//	              → decoder_output, gate_prediction[1,1] 以及同名 out_* 状态
//	postnet       mel_outputs[1,n_mel,T] → mel_outputs_postnet[1,n_mel,T]
package onnxnet

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/iabetor/melgen/internal/device"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/model"
)

// BackendName 是注册到 model 包的后端名称，与 hparams 默认值一致。
const BackendName = "onnx"

// Runtime 是 ONNX Runtime 的进程级配置。
type Runtime struct {
	LibraryPath string // libonnxruntime 路径，为空时按常见位置查找
	NumThreads  int
}

var initMu sync.Mutex

// Init 初始化 ONNX Runtime 环境并注册 onnx 后端。可重复调用。
func Init(rt Runtime) error {
	initMu.Lock()
	defer initMu.Unlock()

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libraryPath(rt.LibraryPath))
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("[onnx] 初始化 ONNX Runtime 失败（可设置 ONNXRUNTIME_LIB_PATH）: %w", err)
		}
		logger.Info("[onnx] ONNX Runtime 已初始化")
	}

	threads := rt.NumThreads
	model.Register(BackendName, func(h *hparams.HParams) (model.Network, error) {
		return newNetwork(h, threads), nil
	})
	return nil
}

// Shutdown 销毁 ONNX Runtime 环境。
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

func libraryPath(configured string) string {
	if configured != "" {
		return configured
	}
	if p := os.Getenv("ONNXRUNTIME_LIB_PATH"); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.dylib",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "libonnxruntime.so"
}

// CUDADetector 通过尝试挂载 CUDA 执行提供者来判断加速器是否可用。
// 环境未初始化时视为不可用。
var CUDADetector device.Detector = device.DetectorFunc(func() bool {
	if !ort.IsInitialized() {
		return false
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return false
	}
	defer opts.Destroy()

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return false
	}
	defer cuda.Destroy()

	return opts.AppendExecutionProviderCUDA(cuda) == nil
})

// sessionOptions 构造指定设备上的会话选项。
func sessionOptions(dev device.Device, threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("[onnx] 创建会话选项失败: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("[onnx] 设置线程数失败: %w", err)
		}
	}
	if dev.IsAccelerated() {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("[onnx] CUDA 不可用: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(dev.Index)}); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("[onnx] 设置 CUDA 设备失败: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("[onnx] 挂载 CUDA 执行提供者失败: %w", err)
		}
	}
	return opts, nil
}
