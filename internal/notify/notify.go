// Package notify turns ledger receipts into WhatsApp messages and deep links.
// Sending is left to the operator's device.
package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
)

const (
	// DefaultCountryCode replaces the trunk prefix 0 of local numbers.
	DefaultCountryCode = "94"
	// DefaultShopName heads every message.
	DefaultShopName = "T&S PowerTech"

	currencyLabel    = "Rs."
	amountPlaces     = 2
	labelCredit      = "Credit"
	labelPayment     = "Payment"
	whatsappSendLink = "whatsapp://send"
)

// Composer builds customer messages for one shop.
type Composer struct {
	shopName    string
	countryCode string
}

// NewComposer returns a Composer, falling back to the defaults for blank values.
func NewComposer(shopName string, countryCode string) Composer {
	shopName = strings.TrimSpace(shopName)
	if shopName == "" {
		shopName = DefaultShopName
	}
	countryCode = digitsOnly(countryCode)
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return Composer{shopName: shopName, countryCode: countryCode}
}

// Message renders the transaction amount, its direction and the new total due.
func (composer Composer) Message(notification ledger.Notification) string {
	label := labelPayment
	if notification.Direction == ledger.DirectionCredit {
		label = labelCredit
	}
	return fmt.Sprintf("%s: \nTransaction: %s %s (%s). \nTotal due: %s %s",
		composer.shopName,
		currencyLabel, notification.Amount.StringFixed(amountPlaces),
		label,
		currencyLabel, notification.NewBalance.StringFixed(amountPlaces),
	)
}

// Phone reduces a contact to digits in international form. It reports false
// when no digits remain.
func (composer Composer) Phone(contact string) (string, bool) {
	phone := digitsOnly(contact)
	if phone == "" {
		return "", false
	}
	if strings.HasPrefix(phone, "0") {
		phone = composer.countryCode + phone[1:]
	}
	return phone, true
}

// Link builds the whatsapp:// deep link. Customers without a usable contact get none.
func (composer Composer) Link(notification ledger.Notification) (string, bool) {
	phone, ok := composer.Phone(notification.Contact)
	if !ok {
		return "", false
	}
	text := strings.ReplaceAll(url.QueryEscape(composer.Message(notification)), "+", "%20")
	return whatsappSendLink + "?phone=" + phone + "&text=" + text, true
}

func digitsOnly(raw string) string {
	var builder strings.Builder
	for _, character := range raw {
		if character >= '0' && character <= '9' {
			builder.WriteRune(character)
		}
	}
	return builder.String()
}
