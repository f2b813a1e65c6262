package kubios

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables holding the service credentials.
const (
	EnvClientID     = "KUBIOS_CLIENT_ID"
	EnvClientSecret = "KUBIOS_CLIENT_SECRET"
	EnvAPIKey       = "KUBIOS_API_KEY"
)

// Credentials identify the device to the analysis service.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
}

// Complete reports whether every credential is set.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.APIKey != ""
}

// LoadCredentials reads the credentials from the environment, falling back
// to the given .env files for anything the environment leaves empty.
func LoadCredentials(envFiles ...string) (Credentials, error) {
	fileVals := map[string]string{}
	if len(envFiles) > 0 {
		vals, err := godotenv.Read(envFiles...)
		if err != nil {
			return Credentials{}, fmt.Errorf("reading credentials: %w", err)
		}
		fileVals = vals
	}

	get := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVals[key]
	}
	return Credentials{
		ClientID:     get(EnvClientID),
		ClientSecret: get(EnvClientSecret),
		APIKey:       get(EnvAPIKey),
	}, nil
}
