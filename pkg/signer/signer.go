package signer

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTTLMinutes 默认签名有效期（分钟）
	DefaultTTLMinutes = 30

	// nonceBytes 随机数熵长度
	nonceBytes = 16
)

// Signer 签名引擎
// 配置在构造后不可变，Sign/Verify 无共享可变状态，可安全并发调用
type Signer struct {
	key        string
	ttlMinutes uint
	algorithm  string
	digest     DigestFunc
	now        func() time.Time
}

// Option 引擎配置选项
type Option func(*Signer)

// WithTTL 设置引擎级默认有效期（分钟），0 表示不自动注入过期时间
func WithTTL(minutes uint) Option {
	return func(s *Signer) {
		s.ttlMinutes = minutes
	}
}

// WithAlgorithm 设置命名摘要算法
// 算法名在首次计算摘要时校验，未知算法返回 ErrUnsupportedAlgorithm
func WithAlgorithm(name string) Option {
	return func(s *Signer) {
		s.algorithm = name
	}
}

// WithDigest 设置自定义摘要函数，优先于命名算法
func WithDigest(fn DigestFunc) Option {
	return func(s *Signer) {
		s.digest = fn
	}
}

// New 创建签名引擎
// 默认有效期 30 分钟，默认算法 sha256
func New(key string, opts ...Option) *Signer {
	s := &Signer{
		key:        key,
		ttlMinutes: DefaultTTLMinutes,
		algorithm:  "sha256",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignOptions 单次签名的可选约束
type SignOptions struct {
	TTLMinutes uint     // 相对有效期（分钟），引擎级 TTL 非零时被忽略
	ExpiresAt  uint64   // 绝对过期时间（毫秒），仅在两级 TTL 均未设置时生效
	Methods    []string // 允许的 HTTP 方法，空表示不限制
	IPAddress  string   // 绑定的客户端 IP，空表示不绑定
}

// Context 校验方提供的请求上下文
type Context struct {
	Method    string // 实际请求方法
	IPAddress string // 请求方 IP，启用 IP 绑定时必须提供
}

// Sign 生成签名 URL
// 只会因配置错误（缺密钥/未知算法）失败，不校验输入形态
func (s *Signer) Sign(rawURL string, opts SignOptions) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}

	attrs := attributes{
		nonce: nonce,
		ip:    opts.IPAddress,
	}

	// 过期时间解析优先级：引擎 TTL > 单次 TTL > 绝对过期时间 > 不过期
	switch {
	case s.ttlMinutes > 0:
		attrs.expires = s.expiresAfter(s.ttlMinutes)
	case opts.TTLMinutes > 0:
		attrs.expires = s.expiresAfter(opts.TTLMinutes)
	case opts.ExpiresAt > 0:
		attrs.expires = opts.ExpiresAt
	}

	if len(opts.Methods) > 0 {
		attrs.method = strings.ToUpper(strings.Join(opts.Methods, ","))
	}

	// 摘要覆盖包括属性参数在内、签名参数之前的全部字符
	unsigned := attrs.encode(rawURL)
	digest, err := s.computeDigest(unsigned)
	if err != nil {
		return "", err
	}
	return unsigned + sigParam + digest, nil
}

// Verify 校验签名 URL
// 检查顺序固定：IP 绑定 -> 方法限制 -> 过期 -> 摘要比对，
// 第一个失败的检查决定返回的错误类别
func (s *Signer) Verify(rawURL string, ctx Context) error {
	attrs, sig, unsigned, ok := parse(rawURL)
	if !ok {
		return ErrMismatch
	}

	if attrs.ip != "" && ctx.IPAddress != attrs.ip {
		return ErrBlackholed
	}

	if attrs.method != "" && !methodAllowed(attrs.method, ctx.Method) {
		return ErrBlackholed
	}

	if attrs.expires > 0 && attrs.expires < uint64(s.now().UnixMilli()) {
		return ErrExpired
	}

	expected, err := s.computeDigest(unsigned)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return ErrMismatch
	}
	return nil
}

// methodAllowed 检查请求方法是否在允许集合内
// 沿用子串匹配语义：在逗号拼接的允许列表中查找大写后的请求方法，
// 方法名互为子串时存在误放行的可能（标准 HTTP 动词不受影响）
func methodAllowed(allowed, method string) bool {
	return strings.Contains(allowed, strings.ToUpper(method))
}

// computeDigest 计算摘要，自定义函数优先
func (s *Signer) computeDigest(message string) (string, error) {
	if s.digest != nil {
		return s.digest(message)
	}
	return hmacDigest(s.algorithm, s.key, message)
}

// expiresAfter 计算相对当前时间的过期时间戳（毫秒）
func (s *Signer) expiresAfter(minutes uint) uint64 {
	return uint64(s.now().Add(time.Duration(minutes) * time.Minute).UnixMilli())
}

// newNonce 生成加密安全的随机数，URL 安全编码
func newNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
