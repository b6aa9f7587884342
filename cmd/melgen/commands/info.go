package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iabetor/melgen/internal/tacotron"
)

var infoFormat string

// checkpointInfo 是 info 命令的输出结构。
type checkpointInfo struct {
	Path      string   `json:"path" yaml:"path"`
	Digest    string   `json:"digest" yaml:"digest"`
	Size      int64    `json:"size" yaml:"size"`
	Iteration int64    `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Embedded  bool     `json:"embedded_hparams" yaml:"embedded_hparams"`
	StateDict []string `json:"state_dict" yaml:"state_dict"`
	Hparams   any      `json:"hparams" yaml:"hparams"`
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "打印检查点解析后的超参数",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig
		if err := requireCheckpoint(cfg); err != nil {
			return err
		}
		hp, ckpt, err := tacotron.LoadHParams(cfg.Model.Checkpoint, externalHparams(cfg))
		if err != nil {
			return err
		}

		info := checkpointInfo{
			Path:      cfg.Model.Checkpoint,
			Digest:    ckpt.Digest(),
			Size:      ckpt.Size(),
			Iteration: ckpt.Iteration,
			Embedded:  ckpt.HasHparams(),
			StateDict: ckpt.StateDict.Keys(),
			Hparams:   hp,
		}

		out := cmd.OutOrStdout()
		switch infoFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "yaml":
			enc := yaml.NewEncoder(out)
			defer enc.Close()
			return enc.Encode(info)
		default:
			return fmt.Errorf("不支持的输出格式: %s（json 或 yaml）", infoFormat)
		}
	},
}

func init() {
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "json", "输出格式：json 或 yaml")
}
