package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iabetor/melgen/internal/catalog"
	"github.com/iabetor/melgen/internal/config"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/model/onnxnet"
	"github.com/iabetor/melgen/internal/tacotron"
)

var (
	// 全局参数
	configPath    string
	verbose       bool
	checkpointArg string
	hparamsArg    string
	deviceArg     string

	globalConfig *config.Config
)

// initRuntime 初始化推理后端，测试中会被替换。
var initRuntime = onnxnet.Init

var rootCmd = &cobra.Command{
	Use:   "melgen",
	Short: "Tacotron 2 梅尔谱生成工具",
	Long: `melgen - 加载 Tacotron 2 检查点，把文本或符号序列转换为梅尔谱。

超参数优先使用检查点内嵌的配置，其次是 --hparams 指定的 JSON/YAML 文件。
请求的加速器不可用时自动回退到 CPU（float32）。

示例：
  melgen synth "Hello world." -o hello.npy --checkpoint tacotron2.ckpt
  melgen synth --ids 12,40,33,55 -o ids.npy
  melgen mel speech.wav -o speech.npy
  melgen info --checkpoint tacotron2.ckpt`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := onnxnet.Shutdown(); err != nil {
			logger.Warnf("[onnx] 释放运行时失败: %v", err)
		}
		logger.Sync()
	},
}

// Execute 运行根命令，SIGINT/SIGTERM 会取消正在进行的推理。
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "配置文件路径（YAML）")
	pf.BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")
	pf.StringVar(&checkpointArg, "checkpoint", "", "检查点路径，覆盖配置文件")
	pf.StringVar(&hparamsArg, "hparams", "", "外部超参数文件，覆盖配置文件")
	pf.StringVar(&deviceArg, "device", "", "推理设备，如 cpu、cuda、cuda:1")

	rootCmd.AddCommand(synthCmd, melCmd, infoCmd, runsCmd)
}

func initConfig(cmd *cobra.Command) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("checkpoint") {
		cfg.Model.Checkpoint = checkpointArg
	}
	if cmd.Flags().Changed("hparams") {
		cfg.Model.Hparams = hparamsArg
	}
	if cmd.Flags().Changed("device") {
		cfg.Model.Device = deviceArg
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	if err := logger.Init(cfg.Log.Logger()); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	globalConfig = cfg
	return nil
}

// externalHparams 返回配置中的外部超参数来源，未配置时为 nil。
func externalHparams(cfg *config.Config) hparams.Source {
	if cfg.Model.Hparams == "" {
		return nil
	}
	return hparams.File(cfg.Model.Hparams)
}

func requireCheckpoint(cfg *config.Config) error {
	if cfg.Model.Checkpoint == "" {
		return fmt.Errorf("未指定检查点：使用 --checkpoint 或配置 model.checkpoint")
	}
	return nil
}

// openWrapper 初始化推理后端并加载模型。
func openWrapper(cfg *config.Config) (*tacotron.Wrapper, error) {
	if err := requireCheckpoint(cfg); err != nil {
		return nil, err
	}
	if err := initRuntime(onnxnet.Runtime{
		LibraryPath: cfg.Runtime.LibraryPath,
		NumThreads:  cfg.Runtime.NumThreads,
	}); err != nil {
		return nil, err
	}
	return tacotron.New(cfg.Model.Checkpoint, cfg.Model.Device, tacotron.Options{
		Hparams:        externalHparams(cfg),
		StepsPerSymbol: cfg.Model.StepsPerSymbol,
		GateThreshold:  cfg.Model.GateThreshold,
		Detector:          onnxnet.CUDADetector,
	})
}

// openCatalog 打开检查点目录；配置禁用时返回 nil。
func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Disabled {
		return nil, nil
	}
	return catalog.Open(cfg.Catalog.DBPath)
}
