package command

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ExecuteWithURL 解析命令模板、替换 {url} 占位符后执行
// 包含超时保护，返回命令输出（stdout + stderr）
func ExecuteWithURL(ctx context.Context, cmdTemplate, signedURL string, timeout time.Duration) (string, error) {
	cmdBin, args, err := Parse(cmdTemplate)
	if err != nil {
		return "", err
	}
	cmdBin, args = expand(cmdBin, args, signedURL)

	return run(ctx, cmdBin, args, timeout)
}

// run 执行已解析的命令，避免 shell 注入风险
func run(ctx context.Context, cmdBin string, args []string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(ctx, cmdBin, args...)
	output, err := execCmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return string(output), fmt.Errorf("命令执行超时 (%v)", timeout)
	}

	if err != nil {
		return string(output), fmt.Errorf("命令执行失败: %w", err)
	}

	return string(output), nil
}
