package model

import "strings"

type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentPrice      Intent = "price"
	IntentProduct    Intent = "product"
	IntentMedical    Intent = "medical"
	IntentFollowup   Intent = "followup"
	IntentNonMedical Intent = "non_medical"
	IntentGeneral    Intent = "general"
	IntentFAQ        Intent = "faq"
	IntentWeb        Intent = "web"
)

// AllIntents lists every label in corpus order.
var AllIntents = []Intent{
	IntentGreeting,
	IntentPrice,
	IntentProduct,
	IntentMedical,
	IntentFollowup,
	IntentNonMedical,
	IntentGeneral,
	IntentFAQ,
	IntentWeb,
}

func (i Intent) Valid() bool {
	for _, item := range AllIntents {
		if item == i {
			return true
		}
	}
	return false
}

// ParseIntent maps a free-form label to a known intent, defaulting to general.
func ParseIntent(s string) Intent {
	it := Intent(strings.ToLower(strings.TrimSpace(s)))
	if it.Valid() {
		return it
	}
	return IntentGeneral
}
