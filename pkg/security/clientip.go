package security

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP 从请求中提取客户端真实 IP
// trustProxy 控制是否信任反向代理头部 (X-Forwarded-For, X-Real-IP)
// 安全注意：仅当服务部署在可信反向代理后时才应设置 trustProxy=true，
// 否则攻击者可伪造头部绕过 IP 绑定与白名单
func ExtractClientIP(r *http.Request, trustProxy bool) string {
	// 直连 IP 是唯一无条件可信的来源
	remoteIP := extractRemoteAddr(r)

	if !trustProxy {
		return remoteIP
	}

	// X-Forwarded-For 可能包含多跳，取第一个
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Nginx 常用的 X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return remoteIP
}

// RequestURL 还原请求对应的完整 URL（scheme://host/path?query）
// 校验端重建的字符串必须与签名端看到的逐字节一致，因此直接取 RequestURI，
// 不做任何参数重排或重新编码；scheme 在信任代理时优先取 X-Forwarded-Proto
func RequestURL(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// extractRemoteAddr 从 RemoteAddr 提取直连 IP
// 格式: ip:port 或 [ipv6]:port
func extractRemoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// 可能没有端口号
		return r.RemoteAddr
	}
	return host
}
