package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "列出最近的推理记录",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog(globalConfig)
		if err != nil {
			return err
		}
		if cat == nil {
			return fmt.Errorf("目录已禁用（catalog.disabled=true）")
		}
		defer cat.Close()

		runs, err := cat.RecentRuns(runsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCHECKPOINT\tDEVICE\tSYMBOLS\tFRAMES\tELAPSED\tCREATED")
		for _, r := range runs {
			path := "?"
			if ck, err := cat.GetCheckpoint(r.CheckpointID); err == nil && ck != nil {
				path = ck.Path
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.ID, path, r.Device, r.Symbols, r.Frames,
				r.Elapsed.Round(time.Millisecond), r.CreatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "显示条数")
}
