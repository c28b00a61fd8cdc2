// Package credentials resolves API keys from the process environment with a
// local configuration fallback.
package credentials

import (
	"os"
	"strings"

	"cadio-client/internal/common/errors"
)

// Well-known keys.
const (
	ForgeClientID     = "FORGE_CLIENT_ID"
	ForgeClientSecret = "FORGE_CLIENT_SECRET"
	AWSAccessKey      = "AWSACCESSKEY"
	AWSSecretKey      = "AWSSECRETKEY"
)

// RequiredKeys are needed by every run before any network call.
var RequiredKeys = []string{ForgeClientID, ForgeClientSecret, AWSAccessKey, AWSSecretKey}

// Provider looks up a single credential.
type Provider interface {
	Get(key string) (string, bool)
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// EnvThenConfig checks the environment first, then the fallback map.
type EnvThenConfig struct {
	lookupEnv LookupFunc
	fallback  map[string]string
}

// NewProvider builds a provider over os.LookupEnv and the config file's credentials section.
func NewProvider(fallback map[string]string) *EnvThenConfig {
	return NewProviderWithLookup(os.LookupEnv, fallback)
}

func NewProviderWithLookup(lookup LookupFunc, fallback map[string]string) *EnvThenConfig {
	normalized := make(map[string]string, len(fallback))
	for k, v := range fallback {
		normalized[strings.ToLower(k)] = v
	}
	return &EnvThenConfig{lookupEnv: lookup, fallback: normalized}
}

// Get returns the value and whether it was found; empty values count as missing.
func (p *EnvThenConfig) Get(key string) (string, bool) {
	if v, ok := p.lookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	// viper lower-cases map keys, so the fallback is matched case-insensitively
	if v, ok := p.fallback[strings.ToLower(key)]; ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	return "", false
}

// Set holds resolved credentials for one run.
type Set struct {
	ForgeClientID     string
	ForgeClientSecret string
	AWSAccessKey      string
	AWSSecretKey      string
}

// Require resolves every key and reports all missing ones in a single CREDENTIAL_MISSING error.
func Require(p Provider, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, k := range keys {
		v, ok := p.Get(k)
		if !ok {
			missing = append(missing, k)
			continue
		}
		values[k] = v
	}
	if len(missing) > 0 {
		return nil, errors.NewCredentialMissingError(missing)
	}
	return values, nil
}

// Resolve returns the credential set used by the runner.
func Resolve(p Provider) (*Set, error) {
	values, err := Require(p, RequiredKeys...)
	if err != nil {
		return nil, err
	}
	return &Set{
		ForgeClientID:     values[ForgeClientID],
		ForgeClientSecret: values[ForgeClientSecret],
		AWSAccessKey:      values[AWSAccessKey],
		AWSSecretKey:      values[AWSSecretKey],
	}, nil
}
