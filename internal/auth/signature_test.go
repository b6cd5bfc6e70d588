package auth

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

func signedRequest(t *testing.T, wallet *solana.Wallet, message string) *http.Request {
	t.Helper()
	sig, err := wallet.PrivateKey.Sign([]byte(message))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set(HeaderSigner, wallet.PublicKey().String())
	r.Header.Set(HeaderMessage, message)
	r.Header.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig[:]))
	return r
}

func TestVerifyRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	wallet := solana.NewWallet()
	other := solana.NewWallet()
	coin := solana.NewWallet().PublicKey()
	action := MintAction(coin, 1000)

	tests := []struct {
		name    string
		req     func() *http.Request
		wallet  solana.PublicKey
		wantErr error
	}{
		{
			name:   "valid",
			req:    func() *http.Request { return signedRequest(t, wallet, Message(action, now)) },
			wallet: wallet.PublicKey(),
		},
		{
			name:   "within skew",
			req:    func() *http.Request { return signedRequest(t, wallet, Message(action, now.Add(-4*time.Minute))) },
			wallet: wallet.PublicKey(),
		},
		{
			name:    "missing headers",
			req:     func() *http.Request { return httptest.NewRequest(http.MethodPost, "/", nil) },
			wallet:  wallet.PublicKey(),
			wantErr: ErrSignatureRequired,
		},
		{
			name:    "signed by someone else",
			req:     func() *http.Request { return signedRequest(t, other, Message(action, now)) },
			wallet:  wallet.PublicKey(),
			wantErr: ErrSignerMismatch,
		},
		{
			name:    "different amount",
			req:     func() *http.Request { return signedRequest(t, wallet, Message(MintAction(coin, 999), now)) },
			wallet:  wallet.PublicKey(),
			wantErr: ErrMessageMismatch,
		},
		{
			name:    "redeem signature used for mint",
			req:     func() *http.Request { return signedRequest(t, wallet, Message(RedeemAction(coin, 1000), now)) },
			wallet:  wallet.PublicKey(),
			wantErr: ErrMessageMismatch,
		},
		{
			name:    "no timestamp",
			req:     func() *http.Request { return signedRequest(t, wallet, "create") },
			wallet:  wallet.PublicKey(),
			wantErr: ErrMessageMismatch,
		},
		{
			name:    "stale",
			req:     func() *http.Request { return signedRequest(t, wallet, Message(action, now.Add(-10*time.Minute))) },
			wallet:  wallet.PublicKey(),
			wantErr: ErrMessageExpired,
		},
		{
			name:    "future",
			req:     func() *http.Request { return signedRequest(t, wallet, Message(action, now.Add(10*time.Minute))) },
			wallet:  wallet.PublicKey(),
			wantErr: ErrMessageExpired,
		},
		{
			name: "tampered message",
			req: func() *http.Request {
				r := signedRequest(t, wallet, Message(action, now))
				r.Header.Set(HeaderMessage, Message(MintAction(coin, 1), now))
				return r
			},
			wallet:  wallet.PublicKey(),
			wantErr: ErrInvalidSignature,
		},
		{
			name: "bad encoding",
			req: func() *http.Request {
				r := signedRequest(t, wallet, Message(action, now))
				r.Header.Set(HeaderSignature, "not base64!")
				return r
			},
			wallet:  wallet.PublicKey(),
			wantErr: ErrInvalidSignature,
		},
	}

	v := NewVerifier(5 * time.Minute)
	v.now = func() time.Time { return now }

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyRequest(tt.req(), tt.wallet, action)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("VerifyRequest() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestActions(t *testing.T) {
	coin := solana.MustPublicKeyFromBase58("CGnwq4D9qErCRjPujz5MVkMaixR8BLRACpAmLWsqoRRe")
	if got := MintAction(coin, 5); got != "mint:CGnwq4D9qErCRjPujz5MVkMaixR8BLRACpAmLWsqoRRe:5" {
		t.Errorf("MintAction() = %q", got)
	}
	if got := Message(CreateAction("Test USD"), time.Unix(42, 0)); got != "create:Test USD:42" {
		t.Errorf("Message() = %q", got)
	}
}

func TestVerifyRequest_RejectsReuse(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	wallet := solana.NewWallet()
	coin := solana.NewWallet().PublicKey()
	action := RedeemAction(coin, 50)
	message := Message(action, now)

	v := NewVerifier(time.Minute)
	v.now = func() time.Time { return now }

	if err := v.VerifyRequest(signedRequest(t, wallet, message), wallet.PublicKey(), action); err != nil {
		t.Fatalf("first use error = %v", err)
	}
	if err := v.VerifyRequest(signedRequest(t, wallet, message), wallet.PublicKey(), action); !errors.Is(err, ErrSignatureReused) {
		t.Fatalf("second use error = %v, want %v", err, ErrSignatureReused)
	}

	// A fresh timestamp for the same action is a new message.
	if err := v.VerifyRequest(signedRequest(t, wallet, Message(action, now.Add(time.Second))), wallet.PublicKey(), action); err != nil {
		t.Errorf("fresh message error = %v", err)
	}
}

func TestVerifyRequest_ForgetsExpiredMessages(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	wallet := solana.NewWallet()
	action := CreateAction("Peso")

	v := NewVerifier(time.Minute)
	v.now = func() time.Time { return now }
	if err := v.VerifyRequest(signedRequest(t, wallet, Message(action, now)), wallet.PublicKey(), action); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	if err := v.VerifyRequest(signedRequest(t, wallet, Message(action, now)), wallet.PublicKey(), action); err != nil {
		t.Fatal(err)
	}
	if len(v.seen) != 1 {
		t.Errorf("remembered messages = %d, want 1", len(v.seen))
	}
}
