package stellarnet

import (
	"testing"

	"github.com/stellar/go/clients/horizon"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
)

func TestNewClientValidates(t *testing.T) {
	cases := map[string]struct {
		url, passphrase, code, issuer string
		wantErr                       *errors.Error
	}{
		"valid": {
			url: "https://horizon-testnet.stellar.org", passphrase: "Test SDF Network ; September 2015",
			code: "USDX", issuer: "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H",
			wantErr: nil,
		},
		"missing url": {
			passphrase: "x", code: "USDX", issuer: "G...",
			wantErr: errors.ErrEmpty,
		},
		"missing passphrase": {
			url: "https://example.com", code: "USDX", issuer: "G...",
			wantErr: errors.ErrEmpty,
		},
		"missing asset": {
			url: "https://example.com", passphrase: "x",
			wantErr: errors.ErrEmpty,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			_, err := NewClient(tc.url, tc.passphrase, tc.code, tc.issuer)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}

func TestToStellarAmount(t *testing.T) {
	cases := map[string]struct {
		coin    coin.Coin
		want    int64
		wantErr *errors.Error
	}{
		"whole": {
			coin: coin.NewCoin(12, 0, "USDX"),
			want: 120000000,
		},
		"with fraction": {
			// 3.5 tokens.
			coin: coin.NewCoin(3, 500000000, "USDX"),
			want: 35000000,
		},
		"smallest representable": {
			coin: coin.NewCoin(0, 100, "USDX"),
			want: 1,
		},
		"below network resolution": {
			coin:    coin.NewCoin(0, 1, "USDX"),
			wantErr: errors.ErrAmount,
		},
		"negative": {
			coin:    coin.NewCoin(-1, 0, "USDX"),
			wantErr: errors.ErrAmount,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := toStellarAmount(tc.coin)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if err == nil {
				assert.Equal(t, tc.want, int64(got))
			}
		})
	}
}

func TestDecorateHint(t *testing.T) {
	pub := make([]byte, 32)
	copy(pub[28:], []byte{0xde, 0xad, 0xbe, 0xef})
	dec, err := decorate(ledgernet.PartialSignature{
		Account:   "acc",
		PubKey:    pub,
		Signature: []byte("sig"),
	})
	assert.Nil(t, err)
	assert.Equal(t, [4]byte{0xde, 0xad, 0xbe, 0xef}, [4]byte(dec.Hint))

	_, err = decorate(ledgernet.PartialSignature{Account: "acc", PubKey: []byte{1}})
	if !errors.ErrInput.Is(err) {
		t.Fatalf("want ErrInput, got %+v", err)
	}
}

func TestSubmitErrorClassification(t *testing.T) {
	definitive := &horizon.Error{
		Problem: horizon.Problem{Status: 400, Title: "Transaction Failed"},
	}
	if err := submitError(definitive); !errors.ErrSubmission.Is(err) {
		t.Fatalf("want ErrSubmission, got %+v", err)
	}

	timeout := &horizon.Error{
		Problem: horizon.Problem{Status: 504, Title: "Timeout"},
	}
	if err := submitError(timeout); !errors.ErrIndeterminate.Is(err) {
		t.Fatalf("want ErrIndeterminate, got %+v", err)
	}

	if err := submitError(errors.ErrDatabase.New("connection reset")); !errors.ErrIndeterminate.Is(err) {
		t.Fatalf("want ErrIndeterminate, got %+v", err)
	}
}
