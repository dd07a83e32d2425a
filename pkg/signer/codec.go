package signer

import (
	"net/url"
	"strconv"
	"strings"
)

// sigParam 签名参数的锚定形式
// 签名永远是最后一个追加的参数，因此一定以 &sig= 开头
const sigParam = "&sig="

// attributes 随 URL 传输的签名属性
// 序列化后即固化，校验时由 parse 重建，仅在单次校验期间存活
type attributes struct {
	expires uint64 // 绝对过期时间（毫秒），0 表示不过期
	ip      string // 绑定的客户端 IP，空表示不绑定
	method  string // 允许的 HTTP 方法（逗号分隔、大写），空表示不限制
	nonce   string // 每次签名随机生成，保证相同 URL 的两次签名不同
}

// encode 将属性按固定顺序追加到 URL，返回参与摘要的完整字符串
// 顺序 expires,ip,method,r 固定不可变，缺省属性编码为空字符串，
// 保证签名端与校验端逐字节一致
func (a *attributes) encode(rawURL string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}

	// 显式有序对，不能用 map（遍历顺序不确定）
	pairs := []struct{ name, value string }{
		{"expires", formatExpires(a.expires)},
		{"ip", a.ip},
		{"method", a.method},
		{"r", a.nonce},
	}

	var b strings.Builder
	b.WriteString(rawURL)
	for i, p := range pairs {
		if i == 0 {
			b.WriteString(sep)
		} else {
			b.WriteString("&")
		}
		b.WriteString(p.name)
		b.WriteString("=")
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

func formatExpires(expires uint64) string {
	if expires == 0 {
		return ""
	}
	return strconv.FormatUint(expires, 10)
}

// parse 解析签名 URL，还原属性、签名与未签名部分
// unsigned 必须与签名时参与摘要的字符串逐字节一致，因此只做切割不做重组；
// sig 仅匹配结尾处以 & 分隔的参数，路径或参数值中出现 "sig=" 字样不会误切
func parse(rawURL string) (attrs attributes, sig string, unsigned string, ok bool) {
	i := strings.LastIndex(rawURL, sigParam)
	if i < 0 {
		return attributes{}, "", "", false
	}
	sig = rawURL[i+len(sigParam):]
	if sig == "" || strings.ContainsAny(sig, "&=?") {
		return attributes{}, "", "", false
	}
	unsigned = rawURL[:i]

	u, err := url.Parse(unsigned)
	if err != nil {
		return attributes{}, "", "", false
	}
	q := u.Query()
	if v := q.Get("expires"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			attrs.expires = n
		}
	}
	attrs.ip = q.Get("ip")
	attrs.method = q.Get("method")
	attrs.nonce = q.Get("r")
	return attrs, sig, unsigned, true
}
