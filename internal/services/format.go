package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

func bookingSummary(b *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Booking #%d\n", b.ID)
	fmt.Fprintf(&sb, "Route: %s\n", b.RouteLabel())
	fmt.Fprintf(&sb, "Date: %s\n", b.TravelDate)
	fmt.Fprintf(&sb, "Seat: %s x %d\n", b.SeatClass, b.Quantity)
	if b.UnitPrice.Valid {
		fmt.Fprintf(&sb, "Price: %s per seat\n", b.UnitPrice.Decimal.StringFixed(2))
	}
	fmt.Fprintf(&sb, "Total: %s\n", b.TotalLabel())
	fmt.Fprintf(&sb, "Status: %s", b.Status)
	return sb.String()
}

func draftSummary(user string, d models.BookingDraft) string {
	return fmt.Sprintf(
		"Manual pricing needed\nUser: %s\nRoute: %s → %s\nDate: %s\nSeat: %s\nQuantity: %d",
		user, d.Departure, d.Destination, d.TravelDate, d.SeatClass, d.Quantity,
	)
}

func seatClassChoices() []models.Choice {
	choices := make([]models.Choice, 0, len(models.SeatClasses))
	for _, class := range models.SeatClasses {
		choices = append(choices, models.Choice{
			Label: strings.ToUpper(string(class[:1])) + string(class[1:]),
			Data:  models.CallbackSeatPrefix + string(class),
		})
	}
	return choices
}

func quantityChoices() []models.Choice {
	choices := make([]models.Choice, 0, validator.MaxQuantity)
	for q := validator.MinQuantity; q <= validator.MaxQuantity; q++ {
		choices = append(choices, models.Choice{
			Label: fmt.Sprint(q),
			Data:  fmt.Sprintf("%s%d", models.CallbackQuantityPrefix, q),
		})
	}
	return choices
}

func confirmationChoices() []models.Choice {
	return []models.Choice{
		{Label: "Confirm", Data: models.CallbackConfirm},
		{Label: "Cancel", Data: models.CallbackCancel},
	}
}

func paymentChoices() []models.Choice {
	return []models.Choice{
		{Label: "Pay manually", Data: models.CallbackPayPrefix + string(models.PaymentMethodManual)},
		{Label: "Pay with crypto", Data: models.CallbackPayPrefix + string(models.PaymentMethodCrypto)},
	}
}

func offerDetails(o *models.RegionalOffer) string {
	return fmt.Sprintf("%s\n\n%s\n\nAdvantages: %s\nPrice: %s per month\nMore: %s",
		o.Name, o.Description, o.Advantages, o.Price.StringFixed(2), o.URL)
}

func passSummary(p *models.MonthlyPass, o *models.RegionalOffer) string {
	return fmt.Sprintf("Pass #%d\nOffer: %s\nMonth: %s\nName: %s\nAge: %d\nPost code: %s\nPrice: %s\nStatus: %s",
		p.ID, o.Name, p.MonthLabel(), p.FullName, p.Age, p.PostCode, p.Price.StringFixed(2), p.Status)
}

func offerChoices(offers []models.RegionalOffer) []models.Choice {
	choices := make([]models.Choice, 0, len(offers))
	for i := range offers {
		choices = append(choices, models.Choice{
			Label: offers[i].Label(),
			Data:  fmt.Sprintf("%s%d", models.CallbackOfferPrefix, offers[i].ID),
		})
	}
	return choices
}

func monthChoices(months []time.Time) []models.Choice {
	choices := make([]models.Choice, 0, len(months))
	for _, m := range months {
		choices = append(choices, models.Choice{
			Label: m.Format("January 2006"),
			Data:  models.CallbackMonthPrefix + m.Format(passMonthLayout),
		})
	}
	return choices
}

func passConfirmationChoices() []models.Choice {
	return []models.Choice{
		{Label: "Confirm", Data: models.CallbackPassConfirm},
		{Label: "Cancel", Data: models.CallbackPassCancel},
	}
}
