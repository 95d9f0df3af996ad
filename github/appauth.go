package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gbrlsnchs/jwt/v3"
	gh "github.com/google/go-github/v66/github"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// GitHub rejects app tokens valid for more than ten minutes.
	appTokenLifetime = 9 * time.Minute
	// Installation tokens live one hour.
	installationTokenTTL = 50 * time.Minute
)

// ParsePrivateKey decodes a PEM encoded RSA key. Literal "\n" sequences,
// as found in single line environment variables, are turned into
// newlines first.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	raw = strings.ReplaceAll(raw, `\n`, "\n")
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("github app private key: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("github app private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("github app private key is not RSA")
	}
	return key, nil
}

// appJWT signs the token that authenticates as the app itself.
func (c *Client) appJWT() (string, error) {
	now := c.now()
	pl := jwt.Payload{
		Issuer: strconv.FormatInt(c.appID, 10),
		// Backdated to tolerate clock drift.
		IssuedAt:       jwt.NumericDate(now.Add(-time.Minute)),
		ExpirationTime: jwt.NumericDate(now.Add(appTokenLifetime)),
	}
	token, err := jwt.Sign(&pl, jwt.NewRS256(jwt.RSAPrivateKey(c.key)))
	if err != nil {
		return "", fmt.Errorf("signing app token: %w", err)
	}
	return string(token), nil
}

func (c *Client) asApp() (*gh.Client, error) {
	if c.key == nil {
		return nil, errors.New("github app credentials are not configured")
	}
	token, err := c.appJWT()
	if err != nil {
		return nil, err
	}
	return c.newClient(token), nil
}

// InstallationToken returns a token acting as the given installation.
// Tokens are cached until shortly before they expire.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	if token, ok := c.tokens.Get(installationID); ok {
		return token, nil
	}
	app, err := c.asApp()
	if err != nil {
		return "", err
	}
	tok, _, err := app.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("creating token for installation %d: %w", installationID, err)
	}
	c.tokens.Add(installationID, tok.GetToken())
	return tok.GetToken(), nil
}

func (c *Client) asInstallation(ctx context.Context, installationID int64) (*gh.Client, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return c.newClient(token), nil
}

func (c *Client) asPersonal() (*gh.Client, error) {
	if c.personalToken == "" {
		return nil, errors.New("github personal access token is not configured")
	}
	return c.newClient(c.personalToken), nil
}

func newTokenCache() *expirable.LRU[int64, string] {
	return expirable.NewLRU[int64, string](256, nil, installationTokenTTL)
}
