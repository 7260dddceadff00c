package util

import (
	"regexp"
)

var (
	addressRegex  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	selectorRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{8}$`)
	txHashRegex   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ZeroTxHash is the sentinel operation hash returned when a redemption never
// reached the network. It must never appear in a usage record.
const ZeroTxHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

func IsValidAddress(s string) bool {
	return addressRegex.MatchString(s)
}

func IsValidSelector(s string) bool {
	return selectorRegex.MatchString(s)
}

func IsValidTxHash(s string) bool {
	return txHashRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
