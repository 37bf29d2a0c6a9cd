package service

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"registration-service/internal/util"
)

var (
	msisdnNoise   = regexp.MustCompile(`[^0-9,+]`)
	msisdnPattern = regexp.MustCompile(`^\+48[0-9]{9}$`)
)

// NormalizeMSISDN strips every character except digits, commas and plus
// signs, then accepts only a Polish number in +48XXXXXXXXX form.
func NormalizeMSISDN(raw string) (string, error) {
	msisdn := msisdnNoise.ReplaceAllString(raw, "")
	if !msisdnPattern.MatchString(msisdn) {
		util.Warn("Rejected phone number",
			zap.String("msisdn", util.SanitizeInput(msisdn)),
			zap.Bool("suspicious", util.ContainsSuspicious(raw)))
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, msisdn)
	}
	return msisdn, nil
}
