// Package auth verifies bearer tokens against an external OIDC provider
// (Azure AD) and resolves them to employee principals.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/pelagos-labs/speakgrade/internal/database"
)

// Principal is a verified caller.
type Principal struct {
	EmployeeID int64
	Email      string
	Name       string
}

// Verifier turns a bearer token into a Principal or rejects it.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// ErrUnauthorized covers every verification failure the client should see
// as a 401: missing/malformed/expired tokens, signature mismatches, and
// principals with no active employee record.
var ErrUnauthorized = errors.New("unauthorized")

// EmployeeDirectory resolves a verified email to an employee record.
// *database.DB satisfies it.
type EmployeeDirectory interface {
	GetEmployeeByEmail(ctx context.Context, email string) (*database.Employee, error)
}

// OIDCConfig configures token verification against the identity provider.
type OIDCConfig struct {
	ConfigURL string // OpenID configuration document URL
	Audience  string
	Issuer    string
	ClientID  string // optional appid restriction
	TenantID  string // optional tid restriction
}

// OIDCVerifier validates RS256 bearer tokens using the provider's published
// JWKS, then resolves the token's unique_name claim to an active employee.
type OIDCVerifier struct {
	cfg       OIDCConfig
	directory EmployeeDirectory
	client    *http.Client
	log       zerolog.Logger

	mu       sync.RWMutex
	keys     map[string]*rsa.PublicKey // by kid
	fetched  time.Time
	keysTTL  time.Duration
}

// NewOIDCVerifier creates a verifier. JWKS is fetched lazily and cached for
// an hour; an unknown kid forces a refetch so provider key rotation is
// picked up without a restart.
func NewOIDCVerifier(cfg OIDCConfig, directory EmployeeDirectory, log zerolog.Logger) *OIDCVerifier {
	return &OIDCVerifier{
		cfg:       cfg,
		directory: directory,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
		keysTTL:   time.Hour,
	}
}

// Verify implements Verifier.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token missing", ErrUnauthorized)
	}

	parsed, err := jwt.Parse(token, v.keyfunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}

	if v.cfg.ClientID != "" {
		if appid, _ := claims["appid"].(string); appid != v.cfg.ClientID {
			return nil, fmt.Errorf("%w: unauthorized app", ErrUnauthorized)
		}
	}
	if v.cfg.TenantID != "" {
		if tid, _ := claims["tid"].(string); tid != v.cfg.TenantID {
			return nil, fmt.Errorf("%w: unauthorized tenant", ErrUnauthorized)
		}
	}

	email, _ := claims["unique_name"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: unique_name claim missing", ErrUnauthorized)
	}

	emp, err := v.directory.GetEmployeeByEmail(ctx, email)
	if errors.Is(err, database.ErrEmployeeNotFound) {
		return nil, fmt.Errorf("%w: no active employee for %s", ErrUnauthorized, email)
	}
	if err != nil {
		return nil, fmt.Errorf("employee lookup: %w", err)
	}

	return &Principal{EmployeeID: emp.ID, Email: emp.Email, Name: emp.Name}, nil
}

// keyfunc returns the RSA public key matching the token's kid header,
// refreshing the JWKS cache when needed.
func (v *OIDCVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		v.mu.RLock()
		key, ok := v.keys[kid]
		fresh := time.Since(v.fetched) < v.keysTTL
		v.mu.RUnlock()

		if ok && fresh {
			return key, nil
		}

		if err := v.refreshKeys(ctx); err != nil {
			return nil, err
		}

		v.mu.RLock()
		key, ok = v.keys[kid]
		v.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("kid %q not found in JWKS", kid)
		}
		return key, nil
	}
}

// jwk is a single RSA key from the provider's JWKS document.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *OIDCVerifier) refreshKeys(ctx context.Context) error {
	if v.cfg.ConfigURL == "" {
		return fmt.Errorf("OIDC configuration URL not set")
	}

	var oidcCfg struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := v.getJSON(ctx, v.cfg.ConfigURL, &oidcCfg); err != nil {
		return fmt.Errorf("fetch OpenID config: %w", err)
	}
	if oidcCfg.JWKSURI == "" {
		return fmt.Errorf("jwks_uri missing in OpenID config")
	}

	var jwks struct {
		Keys []jwk `json:"keys"`
	}
	if err := v.getJSON(ctx, oidcCfg.JWKSURI, &jwks); err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := jwkToRSA(k)
		if err != nil {
			v.log.Warn().Err(err).Str("kid", k.Kid).Msg("skipping unparseable JWK")
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("JWKS contained no usable RSA keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.fetched = time.Now()
	v.mu.Unlock()

	v.log.Debug().Int("keys", len(keys)).Msg("JWKS refreshed")
	return nil
}

func (v *OIDCVerifier) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// jwkToRSA builds an rsa.PublicKey from a JWK's base64url modulus and
// exponent.
func jwkToRSA(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: e,
	}, nil
}
