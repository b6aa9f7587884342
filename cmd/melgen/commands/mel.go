package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iabetor/melgen/internal/audio"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/melio"
	"github.com/iabetor/melgen/internal/stft"
	"github.com/iabetor/melgen/internal/tacotron"
)

var melOutput string

var melCmd = &cobra.Command{
	Use:   "mel <input.wav|input.mp3>",
	Short: "WAV/MP3 音频 → 梅尔谱 .npy",
	Long: `用与模型相同的 STFT 参数计算音频的梅尔谱，便于和模型输出对比。

只解析检查点的超参数，不加载网络。音频采样率必须与 sampling_rate 一致。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig
		if err := requireCheckpoint(cfg); err != nil {
			return err
		}
		hp, _, err := tacotron.LoadHParams(cfg.Model.Checkpoint, externalHparams(cfg))
		if err != nil {
			return err
		}
		transform, err := stft.New(stft.ConfigFrom(hp))
		if err != nil {
			return err
		}

		clip, err := audio.ReadAudio(args[0])
		if err != nil {
			return err
		}
		if clip.SampleRate != hp.SamplingRate {
			return fmt.Errorf("%s 采样率为 %d Hz，模型要求 %d Hz", args[0], clip.SampleRate, hp.SamplingRate)
		}
		logger.Debugf("[mel] %s: %.2fs, %d 声道, %d 位, 峰值 %.3f",
			args[0], clip.Duration(), clip.SourceChannels, clip.SourceBitDepth, audio.Peak(clip.Samples))

		mel, err := transform.MelSpectrogram(clip.Samples)
		if err != nil {
			return err
		}
		if err := melio.WriteNPY(melOutput, mel); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d×%d\n", melOutput, mel.Dim(0), mel.Dim(1))
		return nil
	},
}

func init() {
	melCmd.Flags().StringVarP(&melOutput, "output", "o", "mel.npy", "输出 .npy 路径")
}
