package booking

import (
	"fmt"

	"github.com/ManuelReschke/TableFox/app/models"
)

// PaymentRequirement is what a party owes at booking time.
type PaymentRequirement struct {
	ShouldCharge bool
	AmountCents  int64
	Description  string
}

// PaymentRule is one level (venue or service) of payment configuration.
type PaymentRule struct {
	Rule                string
	AmountPerGuestCents int64
	MinimumGuests       int
}

func VenueRule(v *models.Venue) PaymentRule {
	return PaymentRule{Rule: v.PaymentRule, AmountPerGuestCents: v.AmountPerGuestCents, MinimumGuests: v.MinimumGuests}
}

func ServiceRule(s *models.Service) PaymentRule {
	return PaymentRule{Rule: s.PaymentRule, AmountPerGuestCents: s.AmountPerGuestCents, MinimumGuests: s.MinimumGuests}
}

// ComputePaymentRequirement applies the service rule when the service itself
// requires payment and the venue rule otherwise.
func ComputePaymentRequirement(venue PaymentRule, service PaymentRule, serviceRequiresPayment bool, partySize int) PaymentRequirement {
	rule := venue
	level := "venue"
	if serviceRequiresPayment {
		rule = service
		level = "service"
	}

	switch rule.Rule {
	case models.PaymentRuleAllReservations:
	case models.PaymentRuleLargeGroups:
		if partySize < rule.MinimumGuests {
			return PaymentRequirement{}
		}
	default:
		return PaymentRequirement{}
	}

	amount := rule.AmountPerGuestCents * int64(partySize)
	if amount <= 0 {
		return PaymentRequirement{}
	}
	return PaymentRequirement{
		ShouldCharge: true,
		AmountCents:  amount,
		Description:  fmt.Sprintf("Booking deposit (%s rule %s): %d guests x %d", level, rule.Rule, partySize, rule.AmountPerGuestCents),
	}
}
