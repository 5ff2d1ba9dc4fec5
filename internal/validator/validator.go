// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// validCurrencies contains the ISO 4217 currency codes brokers report.
var validCurrencies = map[string]bool{
	"AUD": true, "BRL": true, "CAD": true, "CHF": true, "CNY": true,
	"DKK": true, "EUR": true, "GBP": true, "HKD": true, "ILS": true,
	"INR": true, "JPY": true, "KRW": true, "MXN": true, "NOK": true,
	"NZD": true, "PLN": true, "SEK": true, "SGD": true, "TWD": true,
	"USD": true, "ZAR": true,
}

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("iso4217", validateISO4217)
		_ = v.RegisterValidation("asset_class", validateAssetClass)
		_ = v.RegisterValidation("broker_provider", validateBrokerProvider)
	}
}

func validateISO4217(fl validator.FieldLevel) bool {
	return validCurrencies[fl.Field().String()]
}

func validateAssetClass(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "equity", "etf", "option", "bond", "crypto", "fund":
		return true
	}
	return false
}

func validateBrokerProvider(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "csv_import", "etrade":
		return true
	}
	return false
}
