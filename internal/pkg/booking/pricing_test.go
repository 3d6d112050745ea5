package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/TableFox/app/models"
)

func TestComputePaymentRequirement(t *testing.T) {
	none := PaymentRule{Rule: models.PaymentRuleNone}
	all := PaymentRule{Rule: models.PaymentRuleAllReservations, AmountPerGuestCents: 500}
	large := PaymentRule{Rule: models.PaymentRuleLargeGroups, AmountPerGuestCents: 1000, MinimumGuests: 8}

	cases := []struct {
		name            string
		venue, service  PaymentRule
		serviceRequires bool
		party           int
		charge          bool
		amount          int64
	}{
		{"no rules", none, none, false, 4, false, 0},
		{"venue all reservations", all, none, false, 10, true, 5000},
		{"service overrides venue", none, all, true, 10, true, 5000},
		{"service rule ignored unless service requires payment", none, all, false, 10, false, 0},
		{"service none overrides venue charge", all, none, true, 2, false, 0},
		{"large groups below minimum", large, none, false, 7, false, 0},
		{"large groups at minimum", large, none, false, 8, true, 8000},
		{"zero amount never charges", PaymentRule{Rule: models.PaymentRuleAllReservations}, none, false, 4, false, 0},
		{"unknown rule", PaymentRule{Rule: "bogus", AmountPerGuestCents: 100}, none, false, 4, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputePaymentRequirement(tc.venue, tc.service, tc.serviceRequires, tc.party)
			assert.Equal(t, tc.charge, got.ShouldCharge)
			assert.Equal(t, tc.amount, got.AmountCents)
			if tc.charge {
				assert.NotEmpty(t, got.Description)
			}
		})
	}
}
