package signer

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"sort"
)

// DigestFunc 自定义摘要函数
// 设置后内置 HMAC 路径被完全跳过，密钥处理由函数自行负责
type DigestFunc func(message string) (string, error)

// algorithms 运行时支持的命名摘要算法
var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// Algorithms 返回支持的命名算法列表（已排序）
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hmacDigest 内置摘要：HMAC(algorithm, key, message || key) 的小写十六进制
// 密钥既作为 HMAC 密钥，也拼接进消息体（双重绑定，防御弱摘要原语）
func hmacDigest(algorithm, key, message string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	newHash, ok := algorithms[algorithm]
	if !ok {
		return "", ErrUnsupportedAlgorithm
	}
	mac := hmac.New(newHash, []byte(key))
	mac.Write([]byte(message + key))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
