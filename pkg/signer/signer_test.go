package signer

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

// fixedClock 固定时钟，便于测试过期边界
func fixedClock(ms int64) func() time.Time {
	return func() time.Time {
		return time.UnixMilli(ms)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts SignOptions
		ctx  Context
	}{
		{
			name: "无约束",
			opts: SignOptions{},
			ctx:  Context{},
		},
		{
			name: "绑定方法",
			opts: SignOptions{Methods: []string{"GET"}},
			ctx:  Context{Method: "GET"},
		},
		{
			name: "绑定多个方法",
			opts: SignOptions{Methods: []string{"GET", "POST"}},
			ctx:  Context{Method: "POST"},
		},
		{
			name: "绑定IP",
			opts: SignOptions{IPAddress: "1.2.3.4"},
			ctx:  Context{IPAddress: "1.2.3.4"},
		},
		{
			name: "绑定方法和IP",
			opts: SignOptions{Methods: []string{"DELETE"}, IPAddress: "10.0.0.1"},
			ctx:  Context{Method: "delete", IPAddress: "10.0.0.1"},
		},
	}

	s := New("test-secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := s.Sign("http://example.com/download?file=a.zip", tt.opts)
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			if err := s.Verify(signed, tt.ctx); err != nil {
				t.Errorf("Verify() error = %v, want nil", err)
			}
		})
	}
}

func TestConcreteScenario(t *testing.T) {
	// key=abc, 引擎 TTL 禁用, 绝对过期时间 1700000000000
	s := New("abc", WithTTL(0))
	s.now = fixedClock(1699999999999)

	signed, err := s.Sign("http://x/y", SignOptions{
		Methods:   []string{"GET"},
		ExpiresAt: 1700000000000,
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// 线格式：...?expires=<ms>&ip=&method=GET&r=<nonce>&sig=<hex>
	if !strings.HasPrefix(signed, "http://x/y?expires=1700000000000&ip=&method=GET&r=") {
		t.Errorf("signed URL has wrong prefix: %s", signed)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("signed URL does not parse: %v", err)
	}
	q := u.Query()
	// 16 字节随机数的 URL 安全编码为 22 字符
	if len(q.Get("r")) < 22 {
		t.Errorf("nonce too short: %q", q.Get("r"))
	}
	if q.Get("sig") == "" {
		t.Error("missing sig parameter")
	}

	// 过期前校验通过
	if err := s.Verify(signed, Context{Method: "GET"}); err != nil {
		t.Errorf("Verify() before expiry error = %v, want nil", err)
	}

	// 过期后返回 ErrExpired
	s.now = fixedClock(1700000000001)
	if err := s.Verify(signed, Context{Method: "GET"}); !errors.Is(err, ErrExpired) {
		t.Errorf("Verify() after expiry error = %v, want ErrExpired", err)
	}
}

func TestTamperSensitivity(t *testing.T) {
	s := New("test-secret", WithTTL(0))

	signed, err := s.Sign("http://example.com/path", SignOptions{ExpiresAt: 9999999999999})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	flip := func(u string, idx int) string {
		b := []byte(u)
		if b[idx] == 'a' {
			b[idx] = 'b'
		} else {
			b[idx] = 'a'
		}
		return string(b)
	}

	// 翻转基础 URL 中的字符
	tampered := flip(signed, len("http://example.com/"))
	if err := s.Verify(tampered, Context{}); !errors.Is(err, ErrMismatch) {
		t.Errorf("tampered base URL: error = %v, want ErrMismatch", err)
	}

	// 翻转随机数中的字符
	rIdx := strings.Index(signed, "&r=") + len("&r=")
	tampered = flip(signed, rIdx)
	if err := s.Verify(tampered, Context{}); !errors.Is(err, ErrMismatch) {
		t.Errorf("tampered nonce: error = %v, want ErrMismatch", err)
	}

	// 修改过期时间（仍在未来）同样导致摘要不匹配
	tampered = strings.Replace(signed, "expires=9999999999999", "expires=9999999999998", 1)
	if err := s.Verify(tampered, Context{}); !errors.Is(err, ErrMismatch) {
		t.Errorf("tampered expires: error = %v, want ErrMismatch", err)
	}

	// 翻转签名本身
	tampered = flip(signed, len(signed)-1)
	if err := s.Verify(tampered, Context{}); !errors.Is(err, ErrMismatch) {
		t.Errorf("tampered sig: error = %v, want ErrMismatch", err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	const now = 1700000000000
	s := New("test-secret", WithTTL(0))
	s.now = fixedClock(now)

	// expires = now - 1ms -> 过期
	signed, err := s.Sign("http://example.com/a", SignOptions{ExpiresAt: now - 1})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := s.Verify(signed, Context{}); !errors.Is(err, ErrExpired) {
		t.Errorf("Verify() error = %v, want ErrExpired", err)
	}

	// expires = now + 1ms -> 通过
	signed, err = s.Sign("http://example.com/a", SignOptions{ExpiresAt: now + 1})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := s.Verify(signed, Context{}); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestMethodEnforcement(t *testing.T) {
	s := New("test-secret", WithTTL(0))
	signed, err := s.Sign("http://example.com/a", SignOptions{Methods: []string{"GET"}})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// 方法不匹配
	if err := s.Verify(signed, Context{Method: "POST"}); !errors.Is(err, ErrBlackholed) {
		t.Errorf("Verify(POST) error = %v, want ErrBlackholed", err)
	}

	// 方法匹配不区分大小写
	if err := s.Verify(signed, Context{Method: "get"}); err != nil {
		t.Errorf("Verify(get) error = %v, want nil", err)
	}
}

func TestIPBinding(t *testing.T) {
	s := New("test-secret", WithTTL(0))
	signed, err := s.Sign("http://example.com/a", SignOptions{IPAddress: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// 未提供 IP
	if err := s.Verify(signed, Context{}); !errors.Is(err, ErrBlackholed) {
		t.Errorf("Verify() without ip: error = %v, want ErrBlackholed", err)
	}

	// IP 不一致
	if err := s.Verify(signed, Context{IPAddress: "5.6.7.8"}); !errors.Is(err, ErrBlackholed) {
		t.Errorf("Verify() wrong ip: error = %v, want ErrBlackholed", err)
	}

	// IP 一致
	if err := s.Verify(signed, Context{IPAddress: "1.2.3.4"}); err != nil {
		t.Errorf("Verify() matching ip: error = %v, want nil", err)
	}
}

func TestCheckOrder(t *testing.T) {
	// 已过期且 IP 不匹配的 URL 应报告 Blackholed 而非 Expired
	const now = 1700000000000
	s := New("test-secret", WithTTL(0))
	s.now = fixedClock(now)

	signed, err := s.Sign("http://example.com/a", SignOptions{
		ExpiresAt: now - 1000,
		IPAddress: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := s.Verify(signed, Context{IPAddress: "9.9.9.9"}); !errors.Is(err, ErrBlackholed) {
		t.Errorf("Verify() error = %v, want ErrBlackholed", err)
	}

	// 篡改方法后用原方法校验：先于摘要比对被方法检查拦截
	signed, err = s.Sign("http://example.com/a", SignOptions{Methods: []string{"PUT"}})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	tampered := strings.Replace(signed, "method=PUT", "method=PAT", 1)
	if err := s.Verify(tampered, Context{Method: "PUT"}); !errors.Is(err, ErrBlackholed) {
		t.Errorf("Verify() error = %v, want ErrBlackholed", err)
	}
}

func TestNonceUniqueness(t *testing.T) {
	s := New("test-secret")

	first, err := s.Sign("http://example.com/a", SignOptions{})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	second, err := s.Sign("http://example.com/a", SignOptions{})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if first == second {
		t.Error("two signatures over identical input should differ")
	}

	nonce := func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		return u.Query().Get("r")
	}
	if nonce(first) == nonce(second) {
		t.Error("nonces should differ between calls")
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	s := New("test-secret", WithAlgorithm("md999"))
	if _, err := s.Sign("http://example.com/a", SignOptions{}); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("Sign() error = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestMissingKey(t *testing.T) {
	s := New("")
	if _, err := s.Sign("http://example.com/a", SignOptions{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Sign() error = %v, want ErrMissingKey", err)
	}
}

func TestCustomDigest(t *testing.T) {
	var seen string
	digest := func(message string) (string, error) {
		seen = message
		return "deadbeef", nil
	}

	// 自定义摘要无需密钥
	s := New("", WithTTL(0), WithDigest(digest))
	signed, err := s.Sign("http://example.com/a", SignOptions{})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !strings.HasSuffix(signed, "&sig=deadbeef") {
		t.Errorf("signed URL should end with custom digest: %s", signed)
	}
	// 摘要函数收到的就是签名参数之前的完整字符串
	if seen == "" || !strings.HasPrefix(signed, seen) {
		t.Errorf("digest message %q should be a prefix of %q", seen, signed)
	}

	if err := s.Verify(signed, Context{}); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestExistingQueryString(t *testing.T) {
	s := New("test-secret", WithTTL(0))

	signed, err := s.Sign("http://example.com/a?foo=bar", SignOptions{})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	// 已有查询串时用 & 续接
	if !strings.HasPrefix(signed, "http://example.com/a?foo=bar&expires=&ip=&method=&r=") {
		t.Errorf("signed URL has wrong prefix: %s", signed)
	}
	if err := s.Verify(signed, Context{}); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrMissingKey, 400},
		{ErrUnsupportedAlgorithm, 400},
		{ErrBlackholed, 403},
		{ErrExpired, 410},
		{ErrMismatch, 403},
		{errors.New("other"), 500},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
