package rate

import (
    "strconv"
    "strings"
)

// serviceLabels overrides raw EasyPost service codes with display names.
var serviceLabels = map[string]string{
    "Ground":                       "Ground",
    "GroundAdvantage":              "Ground Advantage",
    "Express":                      "Priority Mail Express",
    "Priority":                     "Priority Mail",
    "First":                        "First-Class",
    "ParcelSelect":                 "Parcel Select",
    "3DaySelect":                   "3 Day Select",
    "2ndDayAir":                    "2nd Day Air",
    "2ndDayAirAM":                  "2nd Day Air AM",
    "NextDayAir":                   "Next Day Air",
    "NextDayAirSaver":              "Next Day Air Saver",
    "NextDayAirEarlyAM":            "Next Day Air Early AM",
    "UPSGroundsaverGreaterThan1lb": "Ground Saver",
    "FEDEX_GROUND":                 "Ground",
    "GROUND_HOME_DELIVERY":         "Home Delivery",
    "FEDEX_EXPRESS_SAVER":          "Express Saver",
    "FEDEX_2_DAY":                  "2-Day",
    "STANDARD_OVERNIGHT":           "Standard Overnight",
    "PRIORITY_OVERNIGHT":           "Priority Overnight",
}

var carrierNames = map[string]string{
    "UPSDAP": "UPS",
    "UPS":    "UPS",
    "USPS":   "USPS",
    "FEDEX":  "FedEx",
    "FedEx":  "FedEx",
}

// FriendlyCarrier maps a provider carrier code to its brand name.
// Unknown codes are returned unchanged.
func FriendlyCarrier(code string) string {
    if name, ok := carrierNames[code]; ok {
        return name
    }
    return code
}

// FriendlyService maps a provider service code to a display label.
// Unknown codes are split before each capital letter, so "NextDayAir" reads "Next Day Air".
func FriendlyService(code string) string {
    if label, ok := serviceLabels[code]; ok {
        return label
    }
    var b strings.Builder
    b.Grow(len(code) + 8)
    for _, r := range code {
        if r >= 'A' && r <= 'Z' {
            b.WriteByte(' ')
        }
        b.WriteRune(r)
    }
    return strings.TrimSpace(b.String())
}

// FormatDeliveryDays renders a business-day count; nil or zero yields "".
func FormatDeliveryDays(days *int) string {
    if days == nil || *days == 0 {
        return ""
    }
    if *days == 1 {
        return "1 business day"
    }
    return strconv.Itoa(*days) + " business days"
}
