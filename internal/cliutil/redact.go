package cliutil

import (
	"regexp"
	"sort"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretNamePattern  = regexp.MustCompile(`(?i)(SECRET|TOKEN|PASSWORD|PASSWD|API_KEY|PRIVATE_KEY|CREDENTIALS?)`)
)

var knownSecretKeys = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AZURE_CLIENT_SECRET",
	"GCP_SERVICE_ACCOUNT_KEY",
	"DATABASE_PASSWORD",
	"DB_PASSWORD",
	"POSTGRES_PASSWORD",
	"REDIS_PASSWORD",
	"API_KEY",
	"ACCESS_TOKEN",
	"REFRESH_TOKEN",
	"CLIENT_SECRET",
}

// Redactor masks secret assignments and known secret values in worker output
// before it reaches the supervisor log.
type Redactor struct {
	keyPattern *regexp.Regexp
	values     []string
}

// NewRedactor builds a Redactor for the built-in secret keys plus extraKeys.
func NewRedactor(extraKeys ...string) *Redactor {
	seen := make(map[string]struct{}, len(knownSecretKeys)+len(extraKeys))
	var escaped []string
	for _, key := range append(append([]string(nil), knownSecretKeys...), extraKeys...) {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		upper := strings.ToUpper(key)
		if _, ok := seen[upper]; ok {
			continue
		}
		seen[upper] = struct{}{}
		escaped = append(escaped, regexp.QuoteMeta(key))
	}
	pattern := regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	return &Redactor{keyPattern: pattern}
}

// WithValues returns a copy of r that also masks the literal values supplied.
// Short values are ignored so common words are not blanked out.
func (r *Redactor) WithValues(values ...string) *Redactor {
	out := &Redactor{keyPattern: r.keyPattern, values: append([]string(nil), r.values...)}
	for _, v := range values {
		if len(v) < 6 {
			continue
		}
		out.values = append(out.values, v)
	}
	// Longest first so overlapping secrets are fully replaced.
	sort.Slice(out.values, func(i, j int) bool { return len(out.values[i]) > len(out.values[j]) })
	return out
}

// Redact masks ${VAR} template references, secret key assignments and any
// registered secret values in message.
func (r *Redactor) Redact(message string) string {
	if message == "" || r == nil {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(string) string {
		return "${" + redactedPlaceholder + "}"
	})
	redacted = r.keyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
	for _, v := range r.values {
		redacted = strings.ReplaceAll(redacted, v, redactedPlaceholder)
	}
	return redacted
}

// SecretEnv returns the keys and values of env entries whose names look like
// credentials.
func SecretEnv(env map[string]string) (keys, values []string) {
	for k, v := range env {
		if !secretNamePattern.MatchString(k) {
			continue
		}
		keys = append(keys, k)
		if v != "" {
			values = append(values, v)
		}
	}
	sort.Strings(keys)
	sort.Strings(values)
	return keys, values
}

var defaultRedactor = NewRedactor()

// RedactSecrets masks common secret placeholders and sensitive key values from
// the supplied string.
func RedactSecrets(message string) string {
	return defaultRedactor.Redact(message)
}
