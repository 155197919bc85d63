package modal

import "strings"

// StripPhone removes formatting characters, keeping a leading "+".
func StripPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AlgerianE164 rewrites a 0XXXXXXXXX, 00213XXXXXXXXX or +213XXXXXXXXX
// number into +213XXXXXXXXX. Anything that is not a 9-digit subscriber
// number comes back empty.
func AlgerianE164(phone string) string {
	var rest string
	switch {
	case strings.HasPrefix(phone, "+213"):
		rest = phone[4:]
	case strings.HasPrefix(phone, "00213"):
		rest = phone[5:]
	case strings.HasPrefix(phone, "0"):
		rest = phone[1:]
	default:
		return ""
	}
	if len(rest) != 9 {
		return ""
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "+213" + rest
}

// CanonicalPhone is the form phones are stored and counted under: the
// +213 form for Algerian numbers, the stripped input otherwise.
func CanonicalPhone(phone string) string {
	stripped := StripPhone(phone)
	if e := AlgerianE164(stripped); e != "" {
		return e
	}
	return stripped
}
