// Package clob implements the authenticated REST client against the
// prediction market's order API (spec.md §4.5, §6).
package clob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Auth signs requests with the L2 HMAC scheme of spec.md §4.5: five
// headers, signature = URL-safe base64 of HMAC-SHA256 over
// timestamp+method+path[+body], keyed by the URL-safe base64 decoded
// API secret. Credentials are supplied directly from configuration —
// there is no on-the-fly derivation or wallet-private-key signing flow
// in this agent's trust model.
type Auth struct {
	address    common.Address
	apiKey     string
	secret     string
	passphrase string
}

// NewAuth validates and checksums walletAddress and pairs it with the
// pre-provisioned API credentials.
func NewAuth(walletAddress, apiKey, secret, passphrase string) (*Auth, error) {
	if !common.IsHexAddress(walletAddress) {
		return nil, fmt.Errorf("invalid wallet address %q", walletAddress)
	}
	return &Auth{
		address:    common.HexToAddress(walletAddress),
		apiKey:     apiKey,
		secret:     secret,
		passphrase: passphrase,
	}, nil
}

// Address returns the checksummed wallet address.
func (a *Auth) Address() string {
	return a.address.Hex()
}

// Headers produces the five authenticated request headers for one
// request.
func (a *Auth) Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := a.buildHMAC(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("build hmac: %w", err)
	}

	return map[string]string{
		"POLY_ADDRESS":    a.address.Hex(),
		"POLY_API_KEY":    a.apiKey,
		"POLY_PASSPHRASE": a.passphrase,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_SIGNATURE":  sig,
	}, nil
}

// buildHMAC computes the HMAC-SHA256 signature for L2 auth.
// message = timestamp + method + requestPath [+ body]
func (a *Auth) buildHMAC(timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(a.secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path
	if body != "" {
		message += body
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
