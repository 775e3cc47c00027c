package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// privateKeyBlock matches a PEM private key block, including encrypted and
// algorithm-specific variants.
var privateKeyBlock = regexp.MustCompile(`(?s)-----BEGIN ([A-Z0-9 ]*)PRIVATE KEY-----.*?-----END ([A-Z0-9 ]*)PRIVATE KEY-----`)

// sensitiveKeys are attribute key fragments whose values are never logged.
var sensitiveKeys = []string{
	"password", "passwd", "passphrase",
	"secret", "token",
	"private_key", "privatekey",
}

// RedactAttr is a slog.HandlerOptions.ReplaceAttr function that hides secret
// material: values of sensitive keys, and PEM private key blocks anywhere in
// a string value.
func RedactAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); strings.Contains(s, "PRIVATE KEY-----") {
			return slog.String(a.Key, RedactString(s))
		}
	}
	return a
}

// RedactString replaces PEM private key blocks in s.
func RedactString(s string) string {
	return privateKeyBlock.ReplaceAllString(s, "-----BEGIN ${1}PRIVATE KEY-----"+redacted+"-----END ${2}PRIVATE KEY-----")
}

// IsSensitiveKey reports whether an attribute key names secret material.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}
