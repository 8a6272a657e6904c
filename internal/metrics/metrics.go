// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層から利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordOrderCreated()
	RecordOrderPersistFailure()
	RecordPaymentVerified()
	RecordPaymentVerifyFailure(reason string)
	RecordPurchaseAppendFailure()
	RecordNotificationFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess         prometheus.Counter
	loginFail            prometheus.Counter
	ordersCreated        prometheus.Counter
	orderPersistFail     prometheus.Counter
	paymentsVerified     prometheus.Counter
	paymentVerifyFail    *prometheus.CounterVec
	purchaseAppendFail   prometheus.Counter
	notificationFailures prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_orders_created_total",
			Help: "作成された注文の合計数",
		}),
		orderPersistFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_order_persist_failure_total",
			Help: "ゲートウェイ注文作成後のローカル保存失敗の合計数",
		}),
		paymentsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_payments_verified_total",
			Help: "検証に成功した決済の合計数",
		}),
		paymentVerifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveeazy_payment_verify_failure_total",
			Help: "決済検証失敗の理由別合計数",
		}, []string{"reason"}),
		purchaseAppendFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_purchase_append_failure_total",
			Help: "検証成功後の購入記録の保存失敗の合計数",
		}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveeazy_notification_failure_total",
			Help: "購入通知メールの送信失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.ordersCreated,
		c.orderPersistFail,
		c.paymentsVerified,
		c.paymentVerifyFail,
		c.purchaseAppendFail,
		c.notificationFailures,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordOrderCreated は注文作成を記録する。
func (c *Collector) RecordOrderCreated() {
	c.ordersCreated.Inc()
}

// RecordOrderPersistFailure はゲートウェイ注文作成後のローカル保存失敗を記録する。
// この値の増加はゲートウェイとローカルDBの突合が必要なことを意味する。
func (c *Collector) RecordOrderPersistFailure() {
	c.orderPersistFail.Inc()
}

// RecordPaymentVerified は決済検証成功を記録する。
func (c *Collector) RecordPaymentVerified() {
	c.paymentsVerified.Inc()
}

// RecordPaymentVerifyFailure は決済検証失敗を理由付きで記録する。
func (c *Collector) RecordPaymentVerifyFailure(reason string) {
	c.paymentVerifyFail.WithLabelValues(reason).Inc()
}

// RecordPurchaseAppendFailure は検証成功後の購入記録の保存失敗を記録する。
func (c *Collector) RecordPurchaseAppendFailure() {
	c.purchaseAppendFail.Inc()
}

// RecordNotificationFailure は購入通知メールの送信失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
