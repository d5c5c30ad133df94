package health

import "regexp"

// sanitizeRules strip connection details from error text before it is
// exposed over HTTP. Order matters: URLs are replaced first so their
// path, address and port segments never reach the later rules.
var sanitizeRules = []struct {
	pattern *regexp.Regexp
	tag     string
}{
	{regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(?:password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// sanitizeErrorMessage replaces URLs, file paths, addresses, ports and
// credential fragments in msg with placeholder tags. FromComponentHealth
// runs every reported error through it.
func sanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	for _, rule := range sanitizeRules {
		msg = rule.pattern.ReplaceAllString(msg, rule.tag)
	}
	return msg
}
