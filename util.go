package voicelane

// truncate bounds s to at most n characters. Response bodies from webhooks
// and negotiation endpoints are truncated before they reach transcripts or
// logs. Counting runes rather than bytes keeps multi-byte text intact.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
