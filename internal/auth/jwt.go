package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

const (
	DefaultJWTIssuer  = "kartei"
	DefaultRoleClaim  = "role"
	DefaultSessionTTL = 12 * time.Hour
)

type JWTProviderConfig struct {
	Secret     string `mapstructure:"secret"`
	SecretFile string `mapstructure:"secret_path"`

	// Issuer is the expected 'iss' claim. Defaults to "kartei".
	Issuer string `mapstructure:"issuer"`

	// RoleClaim names the claim holding the caller role. Defaults to "role".
	RoleClaim string `mapstructure:"role_claim"`
}

// JWTProvider resolves HS256 session tokens issued by the platform.
type JWTProvider struct {
	name      string
	issuer    string
	roleClaim string
	secret    []byte
}

func NewJWTProvider(cfg config.IssuerConfig) (*JWTProvider, error) {
	var conf JWTProviderConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &conf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder for jwt issuer '%s': %w", cfg.Name, err)
	}
	if err := decoder.Decode(cfg.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config for jwt issuer '%s': %w", cfg.Name, err)
	}

	var secret []byte
	if conf.Secret != "" {
		secret = []byte(conf.Secret)
	} else if conf.SecretFile != "" {
		contents, err := os.ReadFile(conf.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file for jwt issuer '%s': %w", cfg.Name, err)
		}
		secret = []byte(strings.TrimSpace(string(contents)))
	} else {
		return nil, fmt.Errorf("jwt issuer '%s' missing 'secret' or 'secret_path'", cfg.Name)
	}

	return newJWTProvider(cfg.Name, conf.Issuer, conf.RoleClaim, secret), nil
}

func newJWTProvider(name, issuer, roleClaim string, secret []byte) *JWTProvider {
	if issuer == "" {
		issuer = DefaultJWTIssuer
	}
	if roleClaim == "" {
		roleClaim = DefaultRoleClaim
	}
	return &JWTProvider{
		name:      name,
		issuer:    issuer,
		roleClaim: roleClaim,
		secret:    secret,
	}
}

func (p *JWTProvider) Name() string {
	return p.name
}

func (p *JWTProvider) IssuerURL() string {
	return p.issuer
}

func (p *JWTProvider) Resolve(_ context.Context, credential string) (*core.Caller, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, &core.AuthenticationError{Reason: "invalid session token", Err: err}
	}
	return callerFromClaims(p.name, claims, p.roleClaim)
}

// Mint signs a session token for the given subject. Used by development tooling;
// production sessions come from the platform's identity service.
func (p *JWTProvider) Mint(subject string, role core.Role, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"iss":       p.issuer,
		"sub":       subject,
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
		p.roleClaim: string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, exp, nil
}

func callerFromClaims(issuerName string, claims map[string]any, roleClaim string) (*core.Caller, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, &core.AuthenticationError{Reason: "token missing 'sub' claim"}
	}
	role, err := parseRole(claims[roleClaim])
	if err != nil {
		return nil, &core.AuthenticationError{Reason: err.Error()}
	}
	return &core.Caller{
		ID:     sub,
		Role:   role,
		Issuer: issuerName,
	}, nil
}

// parseRole accepts a string or a list of strings. Missing roles default to student.
func parseRole(raw any) (core.Role, error) {
	switch v := raw.(type) {
	case nil:
		return core.RoleStudent, nil
	case string:
		return roleFromString(v)
	case []any:
		role := core.RoleStudent
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("invalid role claim element type %T", item)
			}
			if r, err := roleFromString(s); err == nil && r == core.RoleAdmin {
				role = core.RoleAdmin
			}
		}
		return role, nil
	default:
		return "", fmt.Errorf("invalid role claim type %T", raw)
	}
}

func roleFromString(s string) (core.Role, error) {
	switch core.Role(strings.ToLower(strings.TrimSpace(s))) {
	case core.RoleAdmin:
		return core.RoleAdmin, nil
	case core.RoleStudent, "":
		return core.RoleStudent, nil
	default:
		return "", fmt.Errorf("unknown role '%s'", s)
	}
}
