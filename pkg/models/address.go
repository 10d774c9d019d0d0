package models

import "regexp"

var stellarAddressRegexp = regexp.MustCompile(`^[CG][A-Z2-7]{55}$`)

// IsStellarAddress reports whether s looks like an account (G...) or contract (C...) address
func IsStellarAddress(s string) bool {
	return stellarAddressRegexp.MatchString(s)
}

// IsAccountAddress reports whether s looks like an account address
func IsAccountAddress(s string) bool {
	return IsStellarAddress(s) && s[0] == 'G'
}

// IsContractAddress reports whether s looks like a contract address
func IsContractAddress(s string) bool {
	return IsStellarAddress(s) && s[0] == 'C'
}
