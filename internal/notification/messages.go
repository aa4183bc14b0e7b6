package notification

import (
	"fmt"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
)

func OrderCreated(order *domain.Order, to domain.Recipient) domain.Notification {
	return domain.Notification{
		Kind:      domain.NotificationOrderCreated,
		OrderID:   order.ID,
		Recipient: to,
		Title:     "Order created",
		Body:      fmt.Sprintf("Your order #%d was created. Total: %s.", order.ID, order.TotalPriceAfterDiscount.StringFixed(2)),
	}
}

func PaymentLinkIssued(order *domain.Order, to domain.Recipient, url string) domain.Notification {
	return domain.Notification{
		Kind:      domain.NotificationPaymentLinkIssued,
		OrderID:   order.ID,
		Recipient: to,
		Title:     "Complete your payment",
		Body:      fmt.Sprintf("Pay for order #%d here: %s", order.ID, url),
	}
}

func PaymentSettled(orderID int64, to domain.Recipient, status domain.PaymentStatus) domain.Notification {
	if status == domain.PaymentStatusPaid {
		return domain.Notification{
			Kind:      domain.NotificationPaymentSucceeded,
			OrderID:   orderID,
			Recipient: to,
			Title:     "Payment received",
			Body:      fmt.Sprintf("We received the payment for order #%d.", orderID),
		}
	}

	return domain.Notification{
		Kind:      domain.NotificationPaymentFailed,
		OrderID:   orderID,
		Recipient: to,
		Title:     "Payment failed",
		Body:      fmt.Sprintf("The payment for order #%d did not go through.", orderID),
	}
}
