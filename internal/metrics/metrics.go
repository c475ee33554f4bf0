// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(method, result string)
	RecordTokenVerifyFailure(kind string)
	RecordOAuthFailure(stage string)
	RecordUserCreated(source string)
	RecordHTTPStatus(statusCode int)
}

// ログイン方式とその結果のラベル値
const (
	MethodPassword = "password"
	MethodGoogle   = "google"

	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"

	SourceSignup = "signup"
	SourceOAuth  = "oauth"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	login        *prometheus.CounterVec
	verifyFail   *prometheus.CounterVec
	oauthFail    *prometheus.CounterVec
	usersCreated *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queso_login_total",
			Help: "ログイン試行の合計数（方式・結果別）",
		}, []string{"method", "result"}),
		verifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queso_token_verify_failures_total",
			Help: "セッショントークン検証失敗の合計数（種別別）",
		}, []string{"kind"}),
		oauthFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queso_oauth_failures_total",
			Help: "OAuthフロー失敗の合計数（段階別）",
		}, []string{"stage"}),
		usersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queso_users_created_total",
			Help: "作成されたユーザーの合計数（経路別）",
		}, []string{"source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queso_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.login,
		c.verifyFail,
		c.oauthFail,
		c.usersCreated,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(method, result string) {
	c.login.WithLabelValues(method, result).Inc()
}

// RecordTokenVerifyFailure はトークン検証失敗を記録する。
func (c *Collector) RecordTokenVerifyFailure(kind string) {
	c.verifyFail.WithLabelValues(kind).Inc()
}

// RecordOAuthFailure はOAuthフローの失敗を記録する。
func (c *Collector) RecordOAuthFailure(stage string) {
	c.oauthFail.WithLabelValues(stage).Inc()
}

// RecordUserCreated はユーザー作成を記録する。
func (c *Collector) RecordUserCreated(source string) {
	c.usersCreated.WithLabelValues(source).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しない実装。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordLogin(string, string)      {}
func (NopCollector) RecordTokenVerifyFailure(string) {}
func (NopCollector) RecordOAuthFailure(string)       {}
func (NopCollector) RecordUserCreated(string)        {}
func (NopCollector) RecordHTTPStatus(int)            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
