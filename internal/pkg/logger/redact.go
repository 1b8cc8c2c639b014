package logger

// RedactToken masks a credential for safe logging, keeping just enough
// of the prefix to correlate against the platform's token tooling.
// "EAABsbCS1iHgBA..." → "EAAB***"
// Short values (≤8 chars) are fully masked.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***"
}
