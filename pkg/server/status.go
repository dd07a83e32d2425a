package server

import (
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Windeal/linkGuard/pkg/websocket"
)

// Metrics 校验结果计数器
type Metrics struct {
	ok         atomic.Uint64
	blackholed atomic.Uint64
	expired    atomic.Uint64
	mismatch   atomic.Uint64
}

// NewMetrics 创建计数器
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record 按审计事件类别累加
func (m *Metrics) Record(event string) {
	switch event {
	case websocket.EventOK:
		m.ok.Add(1)
	case websocket.EventBlackholed:
		m.blackholed.Add(1)
	case websocket.EventExpired:
		m.expired.Add(1)
	case websocket.EventMismatch:
		m.mismatch.Add(1)
	}
}

// VerifyStats 校验统计快照
type VerifyStats struct {
	OK         uint64 `json:"ok"`
	Blackholed uint64 `json:"blackholed"`
	Expired    uint64 `json:"expired"`
	Mismatch   uint64 `json:"mismatch"`
}

func (m *Metrics) snapshot() VerifyStats {
	return VerifyStats{
		OK:         m.ok.Load(),
		Blackholed: m.blackholed.Load(),
		Expired:    m.expired.Load(),
		Mismatch:   m.mismatch.Load(),
	}
}

// FileStats 交付目录统计
type FileStats struct {
	BaseDir    string     `json:"base_dir"`
	Count      int        `json:"count"`
	TotalBytes int64      `json:"total_bytes"`
	Newest     *time.Time `json:"newest,omitempty"`
}

// ServerStatus 服务状态汇总
type ServerStatus struct {
	GeneratedAt      time.Time                `json:"generated_at"`
	Algorithm        string                   `json:"algorithm"`
	TTLMinutes       uint                     `json:"ttl_minutes"`
	Verify           VerifyStats              `json:"verify"`
	Files            FileStats                `json:"files"`
	Clients          []websocket.ClientStatus `json:"clients"`
	WhitelistEnabled bool                     `json:"whitelist_enabled"`
	Whitelist        string                   `json:"whitelist,omitempty"`
}

// CollectStatus 汇总当前服务状态
func (s *Server) CollectStatus() *ServerStatus {
	return &ServerStatus{
		GeneratedAt:      time.Now(),
		Algorithm:        s.config.Algorithm,
		TTLMinutes:       s.config.TTLMinutes,
		Verify:           s.metrics.snapshot(),
		Files:            collectFileStats(s.config.BaseDir),
		Clients:          s.hub.GetClientStatus(),
		WhitelistEnabled: s.whitelist.IsEnabled(),
		Whitelist:        s.whitelist.Raw(),
	}
}

// collectFileStats 遍历交付目录统计文件数量与体积
func collectFileStats(baseDir string) FileStats {
	stats := FileStats{BaseDir: baseDir}
	var newest time.Time

	filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.Count++
		stats.TotalBytes += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})

	if !newest.IsZero() {
		stats.Newest = &newest
	}
	return stats
}
