package payment

import "strings"

var friendlyReasons = []struct {
	code    string
	message string
}{
	{code: "insufficient_funds", message: "Your card has insufficient funds"},
	{code: "expired_card", message: "Your card has expired"},
	{code: "card_declined", message: "Your card was declined by your bank"},
}

// FriendlyFailureReason turns a gateway decline into a sentence fit for the
// customer. The code is checked first, then the raw message.
func FriendlyFailureReason(code, message string) string {
	for _, r := range friendlyReasons {
		if code == r.code {
			return r.message
		}
	}
	for _, r := range friendlyReasons {
		if strings.Contains(message, r.code) {
			return r.message
		}
	}
	return "An error occurred while processing your payment"
}
