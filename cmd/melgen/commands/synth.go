package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iabetor/melgen/internal/catalog"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/melio"
	"github.com/iabetor/melgen/internal/model"
	"github.com/iabetor/melgen/internal/symbols"
	"github.com/iabetor/melgen/internal/tacotron"
)

var (
	synthOutput string
	synthIDs    string
	synthGate   float64
	synthSeed   int64
)

var synthCmd = &cobra.Command{
	Use:   "synth [text]",
	Short: "文本或符号 ID → 梅尔谱 .npy",
	Long: `把文本（按超参数中的 charset 转换为符号）或逗号分隔的符号 ID 转换为
postnet 后的梅尔谱，保存为 [n_mel_channels, frames] 的 .npy 文件。

最大解码步数 = model.steps_per_symbol × 符号数。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && synthIDs == "" {
			return fmt.Errorf("需要提供文本参数或 --ids")
		}
		if len(args) > 0 && synthIDs != "" {
			return fmt.Errorf("文本参数与 --ids 不能同时使用")
		}

		cfg := globalConfig
		w, err := openWrapper(cfg)
		if err != nil {
			return err
		}
		defer w.Close()

		var seq []int64
		if synthIDs != "" {
			seq, err = parseIDs(synthIDs)
		} else {
			seq, err = encodeText(w, args[0])
		}
		if err != nil {
			return err
		}
		logger.Debugf("[synth] 符号序列长度 %d，最大解码步数 %d", len(seq), w.MaxDecoderSteps(len(seq)))

		opts := model.InferenceOptions{GateThreshold: synthGate}
		if cmd.Flags().Changed("seed") {
			opts.Extra = map[string]any{"seed": synthSeed}
		}

		start := time.Now()
		mel, err := w.Call(cmd.Context(), seq, opts)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		if err := melio.WriteNPY(synthOutput, mel); err != nil {
			return err
		}
		frames := mel.Dim(-1)
		logger.Infof("[synth] 已写入 %s: %d × %d，耗时 %s", synthOutput, mel.Dim(0), frames, elapsed.Round(time.Millisecond))

		runID, err := recordRun(w, cfg.Model.Checkpoint, len(seq), frames, elapsed)
		if err != nil {
			// 目录只是记录，失败不影响输出
			logger.Warnf("[synth] 记录推理失败: %v", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d×%d\t%s\n", synthOutput, mel.Dim(0), frames, runID)
		return nil
	},
}

func init() {
	synthCmd.Flags().StringVarP(&synthOutput, "output", "o", "mel.npy", "输出 .npy 路径")
	synthCmd.Flags().StringVar(&synthIDs, "ids", "", "逗号分隔的符号 ID，代替文本")
	synthCmd.Flags().Float64Var(&synthGate, "gate-threshold", 0, "gate 停止阈值，0 表示使用配置值")
	synthCmd.Flags().Int64Var(&synthSeed, "seed", 0, "传给后端的随机种子")
}

func parseIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("无效的符号 ID %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func encodeText(w *tacotron.Wrapper, text string) ([]int64, error) {
	cs, err := symbols.Lookup(w.HParams().Charset)
	if err != nil {
		return nil, err
	}
	if cs.Size() > w.HParams().NSymbols {
		return nil, fmt.Errorf("字符集 %s 有 %d 个符号，超过模型的 n_symbols=%d", cs.Name(), cs.Size(), w.HParams().NSymbols)
	}
	seq := cs.Encode(text)
	if len(seq) == 0 {
		return nil, fmt.Errorf("文本 %q 在字符集 %s 下没有可用符号", text, cs.Name())
	}
	return seq, nil
}

func recordRun(w *tacotron.Wrapper, path string, nSymbols, frames int, elapsed time.Duration) (string, error) {
	cat, err := openCatalog(globalConfig)
	if err != nil || cat == nil {
		return "", err
	}
	defer cat.Close()

	hp := w.HParams()
	ckID, err := cat.RecordCheckpoint(catalog.Checkpoint{
		Path:         path,
		Digest:       w.Digest(),
		Backend:      hp.Backend,
		NMelChannels: hp.NMelChannels,
		SamplingRate: hp.SamplingRate,
		Charset:      hp.Charset,
	})
	if err != nil {
		return "", err
	}
	return cat.RecordRun(catalog.Run{
		CheckpointID: ckID,
		Device:       w.Device().String(),
		Symbols:      nSymbols,
		Frames:       frames,
		Elapsed:      elapsed,
	})
}
