package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger-domain Prometheus metrics.
type Metrics struct {
	ManagersCreated      prometheus.Counter
	UsersRegistered      prometheus.Counter
	VouchersIssued       prometheus.Counter
	VouchersRedeemed     prometheus.Counter
	AdminsAdded          prometheus.Counter
	AmountFunded         prometheus.Counter
	AmountRedeemed       prometheus.Counter
	AmountStaked         prometheus.Counter
	UnauthorizedAttempts prometheus.Counter
}

// New creates and registers metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a specific registerer so tests can stay isolated.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ManagersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_managers_created_total",
			Help: "Total number of manager instances created.",
		}),
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_users_registered_total",
			Help: "Total number of users registered across all managers.",
		}),
		VouchersIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_vouchers_issued_total",
			Help: "Total number of vouchers issued.",
		}),
		VouchersRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_vouchers_redeemed_total",
			Help: "Total number of vouchers redeemed.",
		}),
		AdminsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_admins_added_total",
			Help: "Total number of admin additions.",
		}),
		AmountFunded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_amount_funded_total",
			Help: "Total asset amount deposited into manager pools.",
		}),
		AmountRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_amount_redeemed_total",
			Help: "Total asset amount moved to users by redemption.",
		}),
		AmountStaked: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_amount_staked_total",
			Help: "Total asset amount locked by staking.",
		}),
		UnauthorizedAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouchsafe_unauthorized_attempts_total",
			Help: "Total gated operations rejected for lack of authority.",
		}),
	}
}
