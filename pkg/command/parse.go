// Package command 提供安全的命令模板解析和执行功能
// 用于 CLI 的 --exec 钩子：签名完成后把 URL 交给外部命令处理
package command

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// URLPlaceholder 命令模板中的签名 URL 占位符
const URLPlaceholder = "{url}"

// validateTemplate 验证命令模板是否安全
// 占位符替换发生在解析之后，因此这里只需检查模板本身
func validateTemplate(cmd string) error {
	// 检查危险字符和模式
	dangerousPatterns := []string{
		";",  // 命令分隔符
		"&",  // 后台执行
		"|",  // 管道
		"`",  // 命令替换
		"$(", // 命令替换
		"${", // 变量替换
		">>", // 追加重定向
		">",  // 重定向
		"<",  // 输入重定向
		"&&", // 逻辑与
		"||", // 逻辑或
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(cmd, pattern) {
			return fmt.Errorf("命令包含不安全的字符: %s", pattern)
		}
	}

	if strings.HasPrefix(strings.TrimSpace(cmd), "sudo ") {
		return fmt.Errorf("不建议在 exec 钩子中使用 sudo")
	}

	return nil
}

// Parse 将命令模板解析为命令和参数，支持 Shell 风格的引号处理
// 使用 github.com/google/shlex 进行词法分析，正确处理单引号、双引号和转义字符。
// 解析前先验证模板安全性，拒绝包含 shell 特殊字符的命令。
func Parse(cmd string) (string, []string, error) {
	if err := validateTemplate(cmd); err != nil {
		return "", nil, err
	}

	args, err := shlex.Split(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("命令解析失败: %w", err)
	}

	if len(args) == 0 {
		return "", nil, fmt.Errorf("空命令")
	}

	return args[0], args[1:], nil
}

// expand 将解析后参数中的占位符替换为签名 URL
// 替换在词法分析之后进行，URL 中的 & 等字符既不经过 shell 也不参与安全校验
func expand(cmdBin string, args []string, signedURL string) (string, []string) {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = strings.ReplaceAll(arg, URLPlaceholder, signedURL)
	}
	return strings.ReplaceAll(cmdBin, URLPlaceholder, signedURL), out
}
