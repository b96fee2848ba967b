/*
Package custodytest provides in-memory fakes for the slow or external
collaborators of the engine, so tests can run hermetically and observe
exactly what was signed and submitted.
*/
package custodytest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/ledgernet"
)

// Client is a fake ledger network. It prepares deterministic payloads
// and records every submission. The zero value is ready to use and safe
// for concurrent use.
type Client struct {
	mu sync.Mutex

	// PrepareErr, when set, fails every Prepare call.
	PrepareErr error
	// SubmitErr, when set, fails every SubmitMultiSigned call. Wrap
	// errors.ErrSubmission or errors.ErrIndeterminate to exercise the
	// two failure modes.
	SubmitErr error

	prepared  int
	submitted []*ledgernet.FinalPayload
}

var _ ledgernet.Client = (*Client)(nil)

func (c *Client) Prepare(ctx context.Context, spec ledgernet.PaymentSpec, fee coin.Coin) (*ledgernet.UnsignedPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PrepareErr != nil {
		return nil, c.PrepareErr
	}
	c.prepared++
	raw := []byte(fmt.Sprintf("tx/%d/%s/%s/%s/%s", c.prepared, spec.Source, spec.Destination, spec.Amount, spec.Memo))
	digest := sha256.Sum256(raw)
	return &ledgernet.UnsignedPayload{
		Raw:    raw,
		Digest: digest[:],
		Source: spec.Source,
		Fee:    fee,
	}, nil
}

func (c *Client) SubmitMultiSigned(ctx context.Context, final *ledgernet.FinalPayload) (*ledgernet.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return nil, c.SubmitErr
	}
	c.submitted = append(c.submitted, final)
	return &ledgernet.SubmitResult{
		TxID:   fmt.Sprintf("faketx-%d", len(c.submitted)),
		Ledger: int64(1000 + len(c.submitted)),
	}, nil
}

// SubmitCount returns how many submissions went through.
func (c *Client) SubmitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submitted)
}

// LastSubmitted returns the most recent submitted payload, or nil.
func (c *Client) LastSubmitted() *ledgernet.FinalPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.submitted) == 0 {
		return nil
	}
	return c.submitted[len(c.submitted)-1]
}
