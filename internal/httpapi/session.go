package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie = "cod_admin_session"
	sessionTTL    = 8 * time.Hour
)

var shopHost = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// SessionClaims are the claims of a Shopify App Bridge session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Dest string `json:"dest"`
	SID  string `json:"sid,omitempty"`
}

// SessionVerifier checks HS256 session tokens signed with the app secret.
// With an empty secret every token is refused.
type SessionVerifier struct {
	secret []byte
	apiKey string
	now    func() time.Time
}

func NewSessionVerifier(secret, apiKey string) *SessionVerifier {
	return &SessionVerifier{secret: []byte(secret), apiKey: apiKey, now: time.Now}
}

// Verify validates token and returns its claims and the shop domain it was
// issued for.
func (v *SessionVerifier) Verify(token string) (*SessionClaims, string, error) {
	if len(v.secret) == 0 {
		return nil, "", errors.New("session tokens are not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.apiKey != "" {
		opts = append(opts, jwt.WithAudience(v.apiKey))
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("session token: %w", err)
	}

	shop, err := hostOf(claims.Dest)
	if err != nil {
		return nil, "", fmt.Errorf("session token dest: %w", err)
	}
	if claims.Issuer != "" {
		iss, err := hostOf(claims.Issuer)
		if err != nil || iss != shop {
			return nil, "", errors.New("session token issuer does not match dest")
		}
	}
	return claims, shop, nil
}

// Mint issues a token for shop with the same claim layout Shopify uses, so
// Verify accepts it.
func (v *SessionVerifier) Mint(shop, subject string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("session tokens are not configured")
	}
	now := v.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shop + "/admin",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Dest: "https://" + shop,
	}
	if v.apiKey != "" {
		claims.Audience = jwt.ClaimStrings{v.apiKey}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func hostOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if !shopHost.MatchString(host) {
		return "", fmt.Errorf("%q is not a shop domain", host)
	}
	return host, nil
}

type shopKey struct{}

// ShopFromContext returns the shop of an authenticated admin request.
func ShopFromContext(ctx context.Context) string {
	shop, _ := ctx.Value(shopKey{}).(string)
	return shop
}

func WithShop(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, shopKey{}, shop)
}

// Middleware accepts a bearer token, an id_token query parameter or the
// admin session cookie. A valid id_token is exchanged for the cookie so
// pages reached by plain links stay authenticated.
func (v *SessionVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromQuery := sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, failure{Error: "unauthorized", Message: "missing session token"})
			return
		}
		claims, shop, err := v.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, failure{Error: "unauthorized", Message: "invalid or expired session token"})
			return
		}
		if fromQuery {
			if minted, err := v.Mint(shop, claims.Subject, sessionTTL); err == nil {
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookie,
					Value:    minted,
					Path:     "/",
					MaxAge:   int(sessionTTL.Seconds()),
					HttpOnly: true,
					Secure:   true,
					SameSite: http.SameSiteNoneMode,
				})
			}
		}
		next.ServeHTTP(w, r.WithContext(WithShop(r.Context(), shop)))
	})
}

func sessionToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok), false
		}
		return "", false
	}
	if tok := r.URL.Query().Get("id_token"); tok != "" {
		return tok, true
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value, false
	}
	return "", false
}
