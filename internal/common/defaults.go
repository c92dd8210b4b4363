// Package common provides shared utilities and default configuration.
package common

// DefaultKVValue represents a default key/value pair that is seeded on startup.
type DefaultKVValue struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// GetDefaultKVValues returns the list of default KV values seeded on startup.
// This is the single source of truth for default values.
// Values are only written when the key is absent, so operator-set
// credentials are never overwritten.
func GetDefaultKVValues() []DefaultKVValue {
	return []DefaultKVValue{
		{
			Key:         "tushare_token",
			Value:       "",
			Description: "TusharePro API token (the tusharepro provider stays unready until this is set)",
		},
	}
}
