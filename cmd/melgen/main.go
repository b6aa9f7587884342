// Package main 是 melgen 命令行工具的入口。
//
// 用法：
//
//	melgen [flags] <command> [args]
//
// 命令：
//
//	synth  文本或符号 ID → 梅尔谱 .npy
//	mel    WAV 音频 → 梅尔谱 .npy
//	info   打印检查点解析后的超参数
//	runs   列出最近的推理记录
package main

import (
	"fmt"
	"os"

	"github.com/iabetor/melgen/cmd/melgen/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
