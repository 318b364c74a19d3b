package config

import (
	"os"
	"strings"
)

// Nomes canônicos das variáveis (iguais ao .env legado). Aceitamos também o
// formato AWS_* em maiúsculas.
const (
	EnvAccessKeyID     = "aws_access_key_id"
	EnvSecretAccessKey = "aws_secret_access_key"
	EnvSessionToken    = "aws_session_token"
)

// Credentials guarda o trio de segredos AWS. Imutável depois de resolvido.
type Credentials struct {
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
}

func NewCredentials(accessKeyID, secretAccessKey, sessionToken string) Credentials {
	return Credentials{
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		sessionToken:    sessionToken,
	}
}

func (c Credentials) AccessKeyID() string     { return c.accessKeyID }
func (c Credentials) SecretAccessKey() string { return c.secretAccessKey }
func (c Credentials) SessionToken() string    { return c.sessionToken }

// String never prints the secrets, so a Credentials value is safe to pass to a logger.
func (c Credentials) String() string   { return "Credentials{redacted}" }
func (c Credentials) GoString() string { return c.String() }

// ResolveCredentials lê os três segredos do ambiente.
// Falha com *ConfigurationError listando exatamente os que faltam.
func ResolveCredentials() (Credentials, error) {
	return resolveCredentials(lookupEnv)
}

func resolveCredentials(lookup func(string) string) (Credentials, error) {
	names := []string{EnvAccessKeyID, EnvSecretAccessKey, EnvSessionToken}
	values := make([]string, len(names))

	var missing []string
	for i, name := range names {
		values[i] = lookup(name)
		if values[i] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Credentials{}, &ConfigurationError{Missing: missing}
	}

	return NewCredentials(values[0], values[1], values[2]), nil
}

func lookupEnv(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return os.Getenv(strings.ToUpper(name))
}
