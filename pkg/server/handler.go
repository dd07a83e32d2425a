package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Windeal/linkGuard/pkg/security"
	"github.com/Windeal/linkGuard/pkg/signer"
)

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// signResponse 签发接口响应
type signResponse struct {
	URL     string `json:"url"`
	Expires uint64 `json:"expires,omitempty"` // 过期时间戳（毫秒），0 表示不过期
}

// handleSign 签发接口
// 参数：path（必填，以 / 开头）、method（逗号分隔）、ip、ttl（分钟）、expires（毫秒）
// 生成的 URL 以当前请求的 scheme/host 为基准，保证校验端能逐字节还原
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "无效的请求参数", http.StatusBadRequest)
		return
	}

	path := r.Form.Get("path")
	if path == "" || !strings.HasPrefix(path, "/") {
		http.Error(w, "path 必须以 / 开头", http.StatusBadRequest)
		return
	}

	opts := signer.SignOptions{
		IPAddress: r.Form.Get("ip"),
	}
	if m := r.Form.Get("method"); m != "" {
		opts.Methods = strings.Split(m, ",")
	}
	if ttl := r.Form.Get("ttl"); ttl != "" {
		if v, err := strconv.ParseUint(ttl, 10, 32); err == nil {
			opts.TTLMinutes = uint(v)
		}
	}
	if exp := r.Form.Get("expires"); exp != "" {
		if v, err := strconv.ParseUint(exp, 10, 64); err == nil {
			opts.ExpiresAt = v
		}
	}

	trust := s.trustProxy.Load()
	base := security.RequestURL(r, trust)
	u, err := url.Parse(base)
	if err != nil {
		http.Error(w, "无法解析请求地址", http.StatusInternalServerError)
		return
	}
	rawURL := u.Scheme + "://" + u.Host + path

	signed, err := s.engine.Sign(rawURL, opts)
	if err != nil {
		slog.Error("签发失败", "path", path, "error", err)
		http.Error(w, err.Error(), signer.HTTPStatus(err))
		return
	}

	slog.Info("🔗 已签发链接",
		"path", path,
		"method", strings.ToUpper(r.Form.Get("method")),
		"ip", opts.IPAddress)

	respondJSON(w, http.StatusOK, signResponse{
		URL:     signed,
		Expires: parseExpires(signed),
	})
}

// parseExpires 从签名 URL 中取回最终生效的过期时间戳
func parseExpires(signed string) uint64 {
	u, err := url.Parse(signed)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(u.Query().Get("expires"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// handleStatus 状态查询接口
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.CollectStatus())
}

// handleFileDelivery 受保护的文件交付
// 进入此处的请求都已通过签名校验，这里只负责安全地定位并返回文件
func (s *Server) handleFileDelivery(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/files/")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	full, err := s.resolvePath(name)
	if err != nil {
		slog.Warn("文件路径校验失败", "name", name, "error", err)
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	slog.Info("📦 文件已交付", "file", name, "size", info.Size())
	http.ServeFile(w, r, full)
}

// resolvePath 将请求路径映射到 BaseDir 下的文件，拒绝路径遍历
func (s *Server) resolvePath(name string) (string, error) {
	if strings.Contains(name, "..") || strings.Contains(name, "\\") {
		return "", os.ErrPermission
	}

	baseAbs, err := filepath.Abs(s.config.BaseDir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(baseAbs, filepath.FromSlash(name))

	// 拼接后必须仍在 BaseDir 内
	if full != baseAbs && !strings.HasPrefix(full, baseAbs+string(os.PathSeparator)) {
		return "", os.ErrPermission
	}
	return full, nil
}

// respondJSON 输出 JSON 响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		slog.Error("JSON 编码失败", "error", err)
	}
}
