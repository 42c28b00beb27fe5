package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentCreatedTotal counts payment creation attempts by origin and result.
	PaymentCreatedTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts inbound gateway callbacks by type and outcome.
	PaymentCallbackTotal *prometheus.CounterVec
	// TransactionStatusTotal counts transaction status transitions.
	TransactionStatusTotal *prometheus.CounterVec
	// RealtimeSyncTotal counts mirror operations against the realtime store.
	RealtimeSyncTotal *prometheus.CounterVec
	// OTPRedeemTotal counts OTP redemption attempts by outcome.
	OTPRedeemTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_created_total",
			Help:      "Count of payment creation outcomes.",
		}, []string{"origin", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of processed gateway callbacks by type and outcome.",
		}, []string{"type", "result"})
		TransactionStatusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_status_total",
			Help:      "Count of transaction status transitions.",
		}, []string{"status"})
		RealtimeSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_sync_total",
			Help:      "Count of realtime store mirror operations by entity and result.",
		}, []string{"entity", "result"})
		OTPRedeemTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_redeem_total",
			Help:      "Count of OTP redemption attempts by outcome.",
		}, []string{"result"})

		mustRegisterCollector(reg, PaymentCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentCallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentCallbackTotal = v
			}
		})
		mustRegisterCollector(reg, TransactionStatusTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TransactionStatusTotal = v
			}
		})
		mustRegisterCollector(reg, RealtimeSyncTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RealtimeSyncTotal = v
			}
		})
		mustRegisterCollector(reg, OTPRedeemTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OTPRedeemTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
