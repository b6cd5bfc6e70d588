// Package auth verifies Ed25519 wallet signatures carried in request headers.
//
// A signed request sends X-Signer (base58 public key), X-Message and
// X-Signature (base64 signature over X-Message). The message is
// "<action>:<unix seconds>", where action names the transition, for example
// "mint:<stablecoin>:<amount>". A signed message is accepted once; clients
// retrying a failed request sign a fresh timestamp.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	HeaderSignature = "X-Signature"
	HeaderMessage   = "X-Message"
	HeaderSigner    = "X-Signer"

	// DefaultMaxSkew bounds how old or how far ahead a signed timestamp may be.
	DefaultMaxSkew = 5 * time.Minute
)

var (
	ErrSignatureRequired = errors.New("signature required: include X-Signature, X-Message, and X-Signer headers")
	ErrInvalidSignature  = errors.New("signature verification failed")
	ErrSignerMismatch    = errors.New("signer does not match the acting wallet")
	ErrMessageMismatch   = errors.New("signed message does not match the request")
	ErrMessageExpired    = errors.New("signed message timestamp outside the allowed window")
	ErrSignatureReused   = errors.New("signed message was already used")
)

// Headers are the signature headers of one request.
type Headers struct {
	Signature string
	Message   string
	Signer    string
}

// Verifier checks that a request was signed by the wallet it acts for.
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time // signer+message -> signed timestamp
	lastSweep time.Time
}

// NewVerifier returns a Verifier accepting timestamps within maxSkew of now.
func NewVerifier(maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Verifier{maxSkew: maxSkew, now: time.Now, seen: make(map[string]time.Time)}
}

// ExtractHeaders reads the signature headers from r.
func ExtractHeaders(r *http.Request) (Headers, error) {
	h := Headers{
		Signature: r.Header.Get(HeaderSignature),
		Message:   r.Header.Get(HeaderMessage),
		Signer:    r.Header.Get(HeaderSigner),
	}
	if h.Signature == "" || h.Message == "" || h.Signer == "" {
		return h, ErrSignatureRequired
	}
	return h, nil
}

// VerifySignature checks the signature over the message and returns the signer.
func VerifySignature(h Headers) (solana.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(h.Signature)
	if err != nil || len(raw) != len(solana.Signature{}) {
		return solana.PublicKey{}, fmt.Errorf("%w: bad signature encoding", ErrInvalidSignature)
	}
	signer, err := solana.PublicKeyFromBase58(h.Signer)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: bad signer address", ErrInvalidSignature)
	}
	if !solana.SignatureFromBytes(raw).Verify(signer, []byte(h.Message)) {
		return solana.PublicKey{}, ErrInvalidSignature
	}
	return signer, nil
}

// VerifyRequest checks that r carries a valid signature by wallet over
// action and a fresh timestamp.
func (v *Verifier) VerifyRequest(r *http.Request, wallet solana.PublicKey, action string) error {
	h, err := ExtractHeaders(r)
	if err != nil {
		return err
	}

	// The signature is checked before identity so a bad request learns nothing
	// about which wallet was expected.
	signer, err := VerifySignature(h)
	if err != nil {
		return err
	}
	if !signer.Equals(wallet) {
		return ErrSignerMismatch
	}

	signedAction, ts, ok := splitMessage(h.Message)
	if !ok || signedAction != action {
		return fmt.Errorf("%w (expected %s:<unix seconds>)", ErrMessageMismatch, action)
	}
	now := v.now()
	signedAt := time.Unix(ts, 0)
	skew := now.Sub(signedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return ErrMessageExpired
	}
	if !v.markUsed(h.Signer+"|"+h.Message, signedAt, now) {
		return ErrSignatureReused
	}
	return nil
}

// markUsed records key and reports whether it was unseen. Entries are dropped
// once their timestamp leaves the skew window, since the window check
// rejects them from then on.
func (v *Verifier) markUsed(key string, signedAt, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if now.Sub(v.lastSweep) >= v.maxSkew {
		cutoff := now.Add(-v.maxSkew)
		for k, t := range v.seen {
			if t.Before(cutoff) {
				delete(v.seen, k)
			}
		}
		v.lastSweep = now
	}

	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = signedAt
	return true
}

func splitMessage(msg string) (string, int64, bool) {
	i := strings.LastIndexByte(msg, ':')
	if i <= 0 {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(msg[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return msg[:i], ts, true
}

// Message returns the string a wallet signs for action at t.
func Message(action string, t time.Time) string {
	return action + ":" + strconv.FormatInt(t.Unix(), 10)
}

// MintAction names the mint of amount atomic units against stablecoin.
func MintAction(stablecoin solana.PublicKey, amount uint64) string {
	return "mint:" + stablecoin.String() + ":" + strconv.FormatUint(amount, 10)
}

// RedeemAction names the redeem of amount atomic units against stablecoin.
func RedeemAction(stablecoin solana.PublicKey, amount uint64) string {
	return "redeem:" + stablecoin.String() + ":" + strconv.FormatUint(amount, 10)
}

// CreateAction names the creation of a stablecoin called name.
func CreateAction(name string) string {
	return "create:" + name
}
