package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Windeal/linkGuard/pkg/command"
	"github.com/Windeal/linkGuard/pkg/signer"
)

const VERSION = "1.2.0"

// 命令行参数
var (
	doSign   = flag.Bool("sign", false, "签发模式：对 -url 生成签名链接")
	doVerify = flag.Bool("verify", false, "校验模式：校验 -url 的签名")
	rawURL   = flag.String("url", "", "目标 URL")
	key      = flag.String("k", "", "签名密钥")
	alg      = flag.String("alg", "sha256", "摘要算法")
	methods  = flag.String("method", "", "绑定的 HTTP 方法，逗号分隔（签发）/ 请求方法（校验）")
	ip       = flag.String("ip", "", "绑定的客户端 IP（签发）/ 请求来源 IP（校验）")
	ttl      = flag.Uint("ttl", signer.DefaultTTLMinutes, "有效期（分钟），0 表示永不过期")
	expires  = flag.Uint64("expires", 0, "绝对过期时间戳（毫秒），与 -ttl 互斥时以 -ttl 优先")
	execTmpl = flag.String("exec", "", "签发后执行的命令模板，{url} 会替换为签名链接")
	timeout  = flag.Duration("timeout", 30*time.Second, "-exec 命令超时时间")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须通过 -k 指定签名密钥")
		usage()
		os.Exit(1)
	}
	if *rawURL == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须通过 -url 指定目标 URL")
		usage()
		os.Exit(1)
	}

	engine := signer.New(*key,
		signer.WithTTL(*ttl),
		signer.WithAlgorithm(*alg),
	)

	switch {
	case *doSign:
		runSign(engine)
	case *doVerify:
		runVerify(engine)
	default:
		fmt.Fprintln(os.Stderr, "错误: 必须指定 -sign 或 -verify")
		usage()
		os.Exit(1)
	}
}

// runSign 签发链接，可选执行后续命令
func runSign(engine *signer.Signer) {
	opts := signer.SignOptions{
		ExpiresAt: *expires,
		IPAddress: *ip,
	}
	if *methods != "" {
		opts.Methods = strings.Split(*methods, ",")
	}

	signed, err := engine.Sign(*rawURL, opts)
	if err != nil {
		slog.Error("签发失败", "error", err)
		os.Exit(1)
	}

	fmt.Println(signed)

	if *execTmpl != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		output, err := command.ExecuteWithURL(ctx, *execTmpl, signed, *timeout)
		if err != nil {
			slog.Error("命令执行失败", "error", err, "output", output)
			os.Exit(1)
		}
		if output != "" {
			fmt.Print(output)
		}
	}
}

// runVerify 校验签名链接
func runVerify(engine *signer.Signer) {
	err := engine.Verify(*rawURL, signer.Context{
		Method:    *methods,
		IPAddress: *ip,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⛔ 校验失败 (HTTP %d): %v\n", signer.HTTPStatus(err), err)
		os.Exit(1)
	}
	fmt.Println("✅ 签名有效")
}

func usage() {
	fmt.Fprintf(os.Stderr, `linkGuard 客户端 v%s - 离线签发与校验工具

使用方式:
  linkguard-client -sign -k <密钥> -url <URL> [选项]
  linkguard-client -verify -k <密钥> -url <签名URL> [选项]

选项:
`, VERSION)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
示例:
  # 签发一条 10 分钟有效、只允许 GET 的链接
  linkguard-client -sign -k mysecret -url http://cdn.example.com/files/pkg.tar.gz -ttl 10 -method GET

  # 签发后直接交给 curl 下载
  linkguard-client -sign -k mysecret -url http://cdn.example.com/files/pkg.tar.gz -exec 'curl -fsSL -o pkg.tar.gz {url}'

  # 校验一条拿到的链接
  linkguard-client -verify -k mysecret -url 'http://cdn.example.com/files/pkg.tar.gz?expires=...&sig=...' -method GET
`)
}
