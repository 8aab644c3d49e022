package domain

import "strings"

const AccountNumberLen = 3

// AccountNumberFromBillRef maps a payer-entered bill reference to the tenant
// account number it is addressed to: the first three characters, lowercased.
// ok is false when the reference is too short or the prefix is not letters.
func AccountNumberFromBillRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if len(ref) < AccountNumberLen {
		return "", false
	}
	prefix := strings.ToLower(ref[:AccountNumberLen])
	if !IsAccountNumber(prefix) {
		return "", false
	}
	return prefix, true
}

// IsAccountNumber reports whether s is exactly three lowercase ASCII letters.
func IsAccountNumber(s string) bool {
	if len(s) != AccountNumberLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

// SplitDebitParty splits "2547XXXXXXXX - JOHN DOE" into phone and full name.
// Without a separator the whole value is the phone and name is nil.
func SplitDebitParty(v string) (phone string, fullName *string) {
	parts := strings.SplitN(v, " - ", 2)
	phone = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		name := strings.TrimSpace(parts[1])
		fullName = &name
	}
	return phone, fullName
}
