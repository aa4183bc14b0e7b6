package domain

type NotificationKind string

const (
	NotificationOrderCreated      NotificationKind = "order_created"
	NotificationPaymentLinkIssued NotificationKind = "payment_link_issued"
	NotificationPaymentSucceeded  NotificationKind = "payment_succeeded"
	NotificationPaymentFailed     NotificationKind = "payment_failed"
)

type Recipient struct {
	UserID    int64
	Email     string
	PushToken *string
}

type Notification struct {
	Kind      NotificationKind
	OrderID   int64
	Recipient Recipient
	Title     string
	Body      string
}
