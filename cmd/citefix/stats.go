package main

import (
	"github.com/spf13/cobra"

	"github.com/John-Robertt/citefix/internal/app/run"
	"github.com/John-Robertt/citefix/internal/report"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [root]",
		Short: "统计引用次数、未被引用的 .bib 条目与缺失的 key（只读）",
		Long: `扫描 root（默认当前目录）下的标记文件，统计每个 key 的引用次数，
列出 .bib 中从未被引用的条目，以及引用了 .bib 中不存在的 key 的位置。
忽略列表中的 key 不计为未引用或缺失。

只读，不修改任何文件；只有硬错误（.bib 缺失、语料不可读）时退出码为 1。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eff, log, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			st, err := run.Stats(cmd.Context(), eff, log)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			b, err := report.RenderStats(st, eff.Format)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			if err := emit(b, eff, cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
	addFlags(cmd.Flags())
	return cmd
}
