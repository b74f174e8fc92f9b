package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/agentos/internal/config"
)

// Gateway auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
	AuthModeNone     = "none"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func denied(reason string) AuthResult { return AuthResult{Reason: reason} }

// ResolvedAuth is the gateway auth config after env fallbacks are applied.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth fills unset credentials from AGENTOS_GATEWAY_TOKEN and
// AGENTOS_GATEWAY_PASSWORD. Without an explicit mode, a password selects
// password mode and anything else means token mode.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    orEnv(cfg.Token, "AGENTOS_GATEWAY_TOKEN"),
		Password: orEnv(cfg.Password, "AGENTOS_GATEWAY_PASSWORD"),
	}
	if auth.Mode == "" {
		auth.Mode = AuthModeToken
		if auth.Password != "" {
			auth.Mode = AuthModePassword
		}
	}
	return auth
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

// Secret is the credential a client must present in the current mode.
func (a ResolvedAuth) Secret() string {
	if a.Mode == AuthModePassword {
		return a.Password
	}
	return a.Token
}

// Authorize checks client credentials against the resolved server auth.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	var presented string
	switch server.Mode {
	case AuthModeNone:
		return AuthResult{OK: true, Method: AuthModeNone}
	case AuthModeToken:
		if client != nil {
			presented = client.Token
		}
	case AuthModePassword:
		if client != nil {
			presented = client.Password
		}
	default:
		return denied("unknown auth mode: " + server.Mode)
	}

	switch {
	case client == nil:
		return denied("no credentials provided")
	case server.Secret() == "":
		return denied("server " + server.Mode + " not configured")
	case presented == "":
		return denied(server.Mode + " required")
	case !safeEqual(presented, server.Secret()):
		return denied(server.Mode + "_mismatch")
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// credentialsFromRequest reads a bearer credential from the Authorization
// header. The same secret is accepted as a token or a password, whichever
// mode the server runs in.
func credentialsFromRequest(r *http.Request) *ConnectAuth {
	scheme, secret, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil
	}
	if secret = strings.TrimSpace(secret); secret == "" {
		return nil
	}
	return &ConnectAuth{Token: secret, Password: secret}
}

// safeEqual compares in constant time without leaking the secret length.
func safeEqual(a, b string) bool {
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	same := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(sameLen, same, 0) == 1
}
