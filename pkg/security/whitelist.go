// Package security 提供边界层的安全功能：管理端 IP 白名单与客户端真实 IP 提取
package security

import (
	"net"
	"strings"
	"sync"
)

// IPWhitelist 管理端 IP 白名单
// 保护签发、状态等管理接口，支持单个 IP 与 CIDR 网段，可热重载
type IPWhitelist struct {
	mu      sync.RWMutex
	enabled bool
	ips     map[string]struct{}
	cidrs   []*net.IPNet
	raw     string
}

// NewIPWhitelist 创建白名单，entries 为逗号分隔的 IP/CIDR 列表
// 空字符串表示不启用（放行所有来源）
func NewIPWhitelist(entries string) *IPWhitelist {
	wl := &IPWhitelist{}
	wl.load(entries)
	return wl
}

// load 解析白名单配置，调用方负责加锁
func (wl *IPWhitelist) load(entries string) {
	wl.ips = make(map[string]struct{})
	wl.cidrs = nil
	wl.raw = entries
	wl.enabled = entries != ""

	for _, entry := range strings.Split(entries, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			if _, ipNet, err := net.ParseCIDR(entry); err == nil {
				wl.cidrs = append(wl.cidrs, ipNet)
				continue
			}
		}

		wl.ips[entry] = struct{}{}
	}
}

// IsAllowed 检查 IP 是否被放行
// 未启用时一律放行；无法解析的 IP 一律拒绝
func (wl *IPWhitelist) IsAllowed(ip string) bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	if !wl.enabled {
		return true
	}

	if _, ok := wl.ips[ip]; ok {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range wl.cidrs {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// Update 热重载白名单配置
func (wl *IPWhitelist) Update(entries string) {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.load(entries)
}

// IsEnabled 白名单是否启用
func (wl *IPWhitelist) IsEnabled() bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return wl.enabled
}

// Raw 返回当前生效的原始配置串（用于状态上报）
func (wl *IPWhitelist) Raw() string {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return wl.raw
}
