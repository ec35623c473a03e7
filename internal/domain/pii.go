package domain

import "strings"

// PIICategory is the closed set of field classes the crypto service treats
// as PII. Classification is by exact field name against per-category alias
// sets, not substring matching.
type PIICategory string

const (
	PIISSN            PIICategory = "ssn"
	PIITaxID          PIICategory = "tax_id"
	PIIPhone          PIICategory = "phone"
	PIIEmail          PIICategory = "email"
	PIIAddress        PIICategory = "address"
	PIIDateOfBirth    PIICategory = "date_of_birth"
	PIIDriverLicense  PIICategory = "driver_license"
	PIIPassportNumber PIICategory = "passport_number"
	PIICardNumber     PIICategory = "card_number"
)

var piiAliases = map[string]PIICategory{
	"ssn":                    PIISSN,
	"social_security_number": PIISSN,
	"tax_id":                 PIITaxID,
	"ein":                    PIITaxID,
	"phone":                  PIIPhone,
	"phone_number":           PIIPhone,
	"email":                  PIIEmail,
	"email_address":          PIIEmail,
	"address":                PIIAddress,
	"home_address":           PIIAddress,
	"mailing_address":        PIIAddress,
	"date_of_birth":          PIIDateOfBirth,
	"dob":                    PIIDateOfBirth,
	"driver_license":         PIIDriverLicense,
	"drivers_license":        PIIDriverLicense,
	"license_number":         PIIDriverLicense,
	"passport_number":        PIIPassportNumber,
	"passport":               PIIPassportNumber,
	"credit_card":            PIICardNumber,
	"card_number":            PIICardNumber,
}

// ClassifyPIIField reports whether a field name belongs to the PII taxonomy.
func ClassifyPIIField(name string) (PIICategory, bool) {
	category, ok := piiAliases[strings.ToLower(name)]
	return category, ok
}
