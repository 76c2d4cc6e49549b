// Package signing computes exchange request signatures.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/shigeo-nakamura/dex-router/pkg/errors"
)

// DefaultRecvWindow is the tolerance in milliseconds most exchanges accept.
const DefaultRecvWindow int64 = 5000

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

// Signature is the outcome of signing one request.
type Signature struct {
	Value      string
	Timestamp  int64
	RecvWindow int64
}

// TimestampString formats the timestamp the way it goes into headers.
func (s Signature) TimestampString() string {
	return strconv.FormatInt(s.Timestamp, 10)
}

// RecvWindowString formats the receive window the way it goes into headers.
func (s Signature) RecvWindowString() string {
	return strconv.FormatInt(s.RecvWindow, 10)
}

// HMACSigner signs `timestamp || apiKey || recvWindow || query || body` with
// HMAC-SHA256 and hex-encodes the digest.
// Keys are kept as []byte so they can be wiped.
type HMACSigner struct {
	apiKey     []byte
	secret     []byte
	recvWindow int64
	now        Clock
}

// NewHMACSigner creates a signer. A missing key or secret is a configuration error.
func NewHMACSigner(apiKey, secret string, recvWindow int64) (*HMACSigner, error) {
	if apiKey == "" || secret == "" {
		return nil, errors.New(errors.ErrCodeMissingSecret, "api key and secret are required for request signing")
	}

	if recvWindow <= 0 {
		recvWindow = DefaultRecvWindow
	}

	return &HMACSigner{
		apiKey:     []byte(apiKey),
		secret:     []byte(secret),
		recvWindow: recvWindow,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source.
func (s *HMACSigner) WithClock(clock Clock) *HMACSigner {
	s.now = clock

	return s
}

// APIKey returns the key the signature is bound to.
func (s *HMACSigner) APIKey() string {
	return string(s.apiKey)
}

// Sign signs a request. Either part may be empty.
func (s *HMACSigner) Sign(query, body string) Signature {
	timestamp := s.now().UnixMilli()
	prehash := strconv.FormatInt(timestamp, 10) + string(s.apiKey) + strconv.FormatInt(s.recvWindow, 10) + query + body

	return Signature{
		Value:      s.SignMessage(prehash),
		Timestamp:  timestamp,
		RecvWindow: s.recvWindow,
	}
}

// SignMessage returns the hex HMAC-SHA256 of an arbitrary message, used for
// websocket authentication frames.
func (s *HMACSigner) SignMessage(message string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))

	return hex.EncodeToString(mac.Sum(nil))
}

// Now exposes the signer clock so callers stamp frames consistently.
func (s *HMACSigner) Now() time.Time {
	return s.now()
}

// Wipe clears the keys from memory.
func (s *HMACSigner) Wipe() {
	if s == nil {
		return
	}

	wipe(s.apiKey)
	wipe(s.secret)
}

// RequestSigner signs `timestamp || METHOD || path || payload` with HMAC-SHA256
// keyed by the base64 encoding of the secret and returns a base64 digest.
type RequestSigner struct {
	apiKey     string
	passphrase string
	key        []byte
	now        Clock
}

// NewRequestSigner creates a method/path style signer.
func NewRequestSigner(apiKey, secret, passphrase string) (*RequestSigner, error) {
	if apiKey == "" || secret == "" || passphrase == "" {
		return nil, errors.New(errors.ErrCodeMissingSecret, "api key, secret and passphrase are required for request signing")
	}

	return &RequestSigner{
		apiKey:     apiKey,
		passphrase: passphrase,
		key:        []byte(base64.StdEncoding.EncodeToString([]byte(secret))),
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source.
func (s *RequestSigner) WithClock(clock Clock) *RequestSigner {
	s.now = clock

	return s
}

// APIKey returns the key the signature is bound to.
func (s *RequestSigner) APIKey() string {
	return s.apiKey
}

// Passphrase returns the passphrase sent next to the signature.
func (s *RequestSigner) Passphrase() string {
	return s.passphrase
}

// Sign signs one request. payload is the encoded query for GET or the form body for POST.
func (s *RequestSigner) Sign(method, path, payload string) Signature {
	timestamp := s.now().UnixMilli()
	message := strconv.FormatInt(timestamp, 10) + method + path + payload

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(message))

	return Signature{
		Value:      base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		Timestamp:  timestamp,
		RecvWindow: 0,
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
