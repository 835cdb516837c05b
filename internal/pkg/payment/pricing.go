package payment

import (
	"math"
	"strconv"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/internal/pkg/env"
)

// TierPriceUSD maps purchasable tiers to their monthly USD price.
var TierPriceUSD = map[string]float64{
	models.TierBasic: 9.99,
	models.TierPro:   19.99,
}

// IsPurchasableTier reports whether a tier can be bought (free is not).
func IsPurchasableTier(tier string) bool {
	_, ok := TierPriceUSD[tier]
	return ok
}

// UsdToInrSubunits converts a USD amount to INR paise using the configured
// exchange rate. Razorpay and PayU both bill in the smallest currency unit.
func UsdToInrSubunits(usdAmount float64) int64 {
	rate := 83.0
	if v := env.GetEnv("USD_TO_INR_RATE", ""); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			rate = parsed
		}
	}
	return int64(math.Round(usdAmount * rate * 100))
}

// TierFromPriceID maps a Stripe price id to a tier. Unknown price ids map to
// the free tier so an unrecognized price never silently upgrades a user.
func TierFromPriceID(priceID string) string {
	switch priceID {
	case "":
		return models.TierFree
	case env.GetEnv("STRIPE_PRICE_ID_BASIC", ""):
		return models.TierBasic
	case env.GetEnv("STRIPE_PRICE_ID_PRO", ""):
		return models.TierPro
	}
	return models.TierFree
}
