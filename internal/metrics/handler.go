package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler はPrometheusメトリクス公開用のhttp.Handlerを返す。
// このライブラリ自身はサーバーを持たないため、組み込み先の
// ホストアプリケーションが任意のエンドポイントにマウントする想定。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
