// Package signer 提供签名 URL 的生成与校验核心
package signer

import (
	"errors"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindMissingKey Kind = iota
	KindUnsupportedAlgorithm
	KindBlackholed
	KindExpired
	KindMismatch
)

// Error 签名错误，携带类别与面向 HTTP 调用方的状态码
// 核心只负责抛出，不记录日志、不重试，由边界层分派处理
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.Message
}

// 闭合的错误集合，调用方通过 errors.Is 判别类别
var (
	// ErrMissingKey 需要计算摘要但未配置密钥
	ErrMissingKey = &Error{KindMissingKey, http.StatusBadRequest, "未配置签名密钥"}

	// ErrUnsupportedAlgorithm 命名摘要算法不受运行时支持
	ErrUnsupportedAlgorithm = &Error{KindUnsupportedAlgorithm, http.StatusBadRequest, "不支持的摘要算法"}

	// ErrBlackholed IP 绑定或方法限制校验失败
	// 刻意保持低信息量，不向请求方暴露具体哪项检查未通过
	ErrBlackholed = &Error{KindBlackholed, http.StatusForbidden, "请求被拒绝"}

	// ErrExpired 签名已过期
	ErrExpired = &Error{KindExpired, http.StatusGone, "签名已过期"}

	// ErrMismatch 重新计算的摘要与签名不一致（篡改、密钥错误或 URL 损坏）
	ErrMismatch = &Error{KindMismatch, http.StatusForbidden, "签名不匹配"}
)

// HTTPStatus 返回错误对应的 HTTP 状态码
// 非签名错误统一返回 500
func HTTPStatus(err error) int {
	var sigErr *Error
	if errors.As(err, &sigErr) {
		return sigErr.Status
	}
	return http.StatusInternalServerError
}
