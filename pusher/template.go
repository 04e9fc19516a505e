package pusher

import (
	"fmt"

	"github.com/walletbase/walletd/types"
)

// Notification is a localized {title, message} pair ready for delivery.
type Notification struct {
	Title   string
	Message string
}

type templateSet struct {
	transferReceivedTitle string
	transferSentTitle     string
	transferBody          string
	approvalTitle         string
	approvalBody          string
	swapTitle             string
	swapBody              string
}

// Localized template sets. Unknown locales fall back to English.
var templates = map[string]templateSet{
	"en": {
		transferReceivedTitle: "Transfer Received",
		transferSentTitle:     "Transfer Sent",
		transferBody:          "%s %s from %s",
		approvalTitle:         "Token Approval",
		approvalBody:          "%s approval for %s",
		swapTitle:             "Swap Completed",
		swapBody:              "Swapped %s via %s",
	},
	"es": {
		transferReceivedTitle: "Transferencia recibida",
		transferSentTitle:     "Transferencia enviada",
		transferBody:          "%s %s de %s",
		approvalTitle:         "Aprobación de token",
		approvalBody:          "Aprobación de %s para %s",
		swapTitle:             "Intercambio completado",
		swapBody:              "Intercambiado %s vía %s",
	},
	"pt": {
		transferReceivedTitle: "Transferência recebida",
		transferSentTitle:     "Transferência enviada",
		transferBody:          "%s %s de %s",
		approvalTitle:         "Aprovação de token",
		approvalBody:          "Aprovação de %s para %s",
		swapTitle:             "Troca concluída",
		swapBody:              "Trocado %s via %s",
	},
}

// ShortAddress renders "0x1234…abcd" style short forms. Addresses of
// eight characters or fewer are returned whole.
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// BuildNotification resolves the template for the transaction type. The
// asset symbol comes from the stored asset; amount is pre-formatted by
// the caller.
func BuildNotification(tx types.Transaction, sub types.Subscription, locale, symbol, amount string) Notification {
	tmpl, ok := templates[locale]
	if !ok {
		tmpl = templates["en"]
	}
	switch tx.Type {
	case types.TransactionTypeTokenApproval:
		return Notification{
			Title:   tmpl.approvalTitle,
			Message: fmt.Sprintf(tmpl.approvalBody, symbol, ShortAddress(tx.To)),
		}
	case types.TransactionTypeSwap:
		return Notification{
			Title:   tmpl.swapTitle,
			Message: fmt.Sprintf(tmpl.swapBody, symbol, ShortAddress(tx.To)),
		}
	default:
		title := tmpl.transferReceivedTitle
		counterparty := tx.From
		if tx.From == sub.Address {
			title = tmpl.transferSentTitle
			counterparty = tx.To
		}
		return Notification{
			Title:   title,
			Message: fmt.Sprintf(tmpl.transferBody, amount, symbol, ShortAddress(counterparty)),
		}
	}
}
