package job

type Type string

const (
	TypeExpireUnpaid Type = "order.expire_unpaid"
	TypeAutoReject   Type = "order.auto_reject"
	TypeAutoRefund   Type = "order.auto_refund"
	TypeStockRelease Type = "stock.release"
	TypeNotification Type = "notification.send"

	TypeSweepExpireUnpaid Type = "sweep.expire_unpaid"
	TypeSweepAutoReject   Type = "sweep.auto_reject"
	TypeSweepReservations Type = "sweep.reservations"
	TypeSweepReconcile    Type = "sweep.reconcile"
	TypeSweepReminders    Type = "sweep.payment_reminders"
)

func (t Type) String() string {
	return string(t)
}

// Sweep kinds accepted by the cron trigger, keyed by their URL name.
var sweepsByName = map[string]Type{
	"expire-unpaid":     TypeSweepExpireUnpaid,
	"auto-reject":       TypeSweepAutoReject,
	"reservations":      TypeSweepReservations,
	"reconcile":         TypeSweepReconcile,
	"payment-reminders": TypeSweepReminders,
}

func SweepByName(name string) (Type, bool) {
	t, ok := sweepsByName[name]
	return t, ok
}

func SweepNames() []string {
	return []string{"expire-unpaid", "auto-reject", "reservations", "reconcile", "payment-reminders"}
}
