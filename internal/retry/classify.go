// Package retry は有界再試行付きの操作実行とエラー分類を提供する。
// 指数バックオフ、接続性確認、ネットワーク/認証/未知へのエラー分類を含む。
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Class はエラーの分類を表す。
type Class string

const (
	// ClassNetwork は一時的なネットワーク障害。再試行可能。
	ClassNetwork Class = "network"
	// ClassAuthentication は認証失敗。現行セッションにとって致命的で、再試行しない。
	ClassAuthentication Class = "authentication"
	// ClassUnknown は分類不能なエラー。最大1回だけ再試行する。
	ClassUnknown Class = "unknown"
)

// Classification は分類結果と再試行可否の組。
type Classification struct {
	Class     Class
	Retryable bool
}

// authMarkers は認証エラーと判定するメッセージ断片。
var authMarkers = []string{
	"jwt",
	"unauthorized",
	"not authenticated",
	"invalid login credentials",
	"invalid api key",
	"session expired",
	"refresh token",
	"auth session missing",
}

// networkMarkers はネットワークエラーと判定するメッセージ断片。
var networkMarkers = []string{
	"fetch failed",
	"failed to fetch",
	"network",
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"service unavailable",
}

// Classify はエラーをネットワーク/認証/未知のいずれかに分類する。
// バックエンドが返すHTTPステータス、トランスポート層のエラー型、
// メッセージ文字列のヒューリスティクスを順に適用する。
func Classify(err error) Classification {
	if err == nil {
		return Classification{Class: ClassUnknown, Retryable: false}
	}

	// 1. HTTPステータスを持つ型付きエラー
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatus(); {
		case status == 401 || status == 403:
			return Classification{Class: ClassAuthentication, Retryable: false}
		case status == 408 || status == 429 || status >= 500:
			return Classification{Class: ClassNetwork, Retryable: true}
		}
	}

	// 2. トランスポート層のエラー型
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Classification{Class: ClassNetwork, Retryable: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Class: ClassNetwork, Retryable: true}
	}

	// 3. メッセージのヒューリスティクス
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return Classification{Class: ClassAuthentication, Retryable: false}
		}
	}
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return Classification{Class: ClassNetwork, Retryable: true}
		}
	}

	return Classification{Class: ClassUnknown, Retryable: true}
}
