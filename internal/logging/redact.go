package logging

import "go.uber.org/zap"

const redactMinLength = 8

// Secret returns a zap field with the value masked down to its last
// four characters. Short values are masked entirely.
func Secret(key, value string) zap.Field {
	return zap.String(key, redactValue(value))
}

func redactValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) < redactMinLength {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
