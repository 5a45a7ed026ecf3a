package models

import "github.com/shopspring/decimal"

// ServiceType is one of the fixed notary offerings.
type ServiceType string

const (
	ServiceGeneralNotary   ServiceType = "General Notary"
	ServiceApostille       ServiceType = "Apostille"
	ServicePowerOfAttorney ServiceType = "Power of Attorney"
	ServiceRON             ServiceType = "RON"
	ServiceMobileNotary    ServiceType = "Mobile Notary"
)

var serviceTypes = []ServiceType{
	ServiceGeneralNotary,
	ServiceApostille,
	ServicePowerOfAttorney,
	ServiceRON,
	ServiceMobileNotary,
}

func ServiceTypes() []ServiceType {
	return append([]ServiceType(nil), serviceTypes...)
}

func (s ServiceType) Valid() bool {
	for _, st := range serviceTypes {
		if st == s {
			return true
		}
	}
	return false
}

// FeeSchedule maps each service to its current price.
type FeeSchedule map[ServiceType]decimal.Decimal

// DefaultFees is the price list used when configuration leaves a fee unset.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		ServiceGeneralNotary:   decimal.RequireFromString("25.00"),
		ServiceApostille:       decimal.RequireFromString("50.00"),
		ServicePowerOfAttorney: decimal.RequireFromString("35.00"),
		ServiceRON:             decimal.RequireFromString("30.00"),
		ServiceMobileNotary:    decimal.RequireFromString("40.00"),
	}
}

// FeeFor returns the fee for s, falling back to the General Notary price.
func (f FeeSchedule) FeeFor(s ServiceType) decimal.Decimal {
	if fee, ok := f[s]; ok {
		return fee
	}
	if fee, ok := f[ServiceGeneralNotary]; ok {
		return fee
	}
	return DefaultFees()[ServiceGeneralNotary]
}
