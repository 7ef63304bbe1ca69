package chain

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/services/vault"
)

// ErrNoSubmitter is returned by Transfer when the directory has neither a
// submitter nor simulation mode.
var ErrNoSubmitter = errors.New("chain: no transfer submitter configured")

// TransferRequest is a NEP-17 transfer that passed simulation.
type TransferRequest struct {
	Token    domain.Principal
	From, To domain.Principal
	Amount   uint64
	Memo     []byte
}

// Submitter signs and relays transfers that passed simulation.
type Submitter interface {
	SubmitTransfer(ctx context.Context, req TransferRequest) (txHash string, err error)
}

// NEP17Directory resolves handler ids against the chain: an id is a handler
// when a contract is deployed at its script hash.
type NEP17Directory struct {
	client    *Client
	submitter Submitter
	simulate  bool
}

var _ vault.Directory = (*NEP17Directory)(nil)

// DirectoryOption configures a NEP17Directory.
type DirectoryOption func(*NEP17Directory)

// SimulateTransfers makes transfers stop after a successful test
// invocation. Nothing is broadcast, so the ledger only mirrors transfers
// settled elsewhere.
func SimulateTransfers() DirectoryOption {
	return func(d *NEP17Directory) { d.simulate = true }
}

// NewNEP17Directory builds a directory whose handlers relay transfers through
// submitter. A nil submitter requires SimulateTransfers.
func NewNEP17Directory(client *Client, submitter Submitter, opts ...DirectoryOption) *NEP17Directory {
	d := &NEP17Directory{client: client, submitter: submitter}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Lookup implements vault.Directory.
func (d *NEP17Directory) Lookup(ctx context.Context, id domain.Principal) (vault.Handler, bool, error) {
	hash := id.Hex()
	if hash == "" {
		return nil, false, fmt.Errorf("principal %s has no script hash", id)
	}
	state, err := d.client.GetContractState(ctx, hash)
	if err != nil {
		if isUnknownContract(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &NEP17Token{client: d.client, submitter: d.submitter, simulate: d.simulate, id: id, hash: hash, name: state.Name}, true, nil
}

// NEP17Token is a vault.Handler backed by a deployed NEP-17 contract.
type NEP17Token struct {
	client    *Client
	submitter Submitter
	simulate  bool
	id        domain.Principal
	hash      string
	name      string
}

var _ vault.Handler = (*NEP17Token)(nil)

// Name returns the manifest name.
func (t *NEP17Token) Name(context.Context) (string, error) {
	if t.name == "" {
		return "", fmt.Errorf("contract %s has no manifest name", t.hash)
	}
	return t.name, nil
}

func (t *NEP17Token) Symbol(ctx context.Context) (string, error) {
	item, err := t.client.InvokeRead(ctx, t.hash, "symbol")
	if err != nil {
		return "", err
	}
	return ParseString(item)
}

func (t *NEP17Token) Decimals(ctx context.Context) (uint8, error) {
	item, err := t.client.InvokeRead(ctx, t.hash, "decimals")
	if err != nil {
		return 0, err
	}
	n, err := ParseUint64(item)
	if err != nil {
		return 0, err
	}
	if n > 255 {
		return 0, fmt.Errorf("decimals %d out of range", n)
	}
	return uint8(n), nil
}

func (t *NEP17Token) TotalSupply(ctx context.Context) (uint64, error) {
	item, err := t.client.InvokeRead(ctx, t.hash, "totalSupply")
	if err != nil {
		return 0, err
	}
	return ParseUint64(item)
}

func (t *NEP17Token) BalanceOf(ctx context.Context, who domain.Principal) (uint64, error) {
	item, err := t.client.InvokeRead(ctx, t.hash, "balanceOf", ContractParam{Type: "Hash160", Value: who.Hex()})
	if err != nil {
		return 0, err
	}
	return ParseUint64(item)
}

// Transfer simulates transfer(from, to, amount, data) with from as the
// signer and fails unless the contract returns true. The transfer is then
// relayed through the submitter; in simulation mode it stops there.
func (t *NEP17Token) Transfer(ctx context.Context, amount uint64, from, to domain.Principal, memo []byte) error {
	if t.submitter == nil && !t.simulate {
		return ErrNoSubmitter
	}
	var data interface{}
	dataType := "Any"
	if len(memo) > 0 {
		dataType, data = "ByteArray", memo
	}
	params := []ContractParam{
		{Type: "Hash160", Value: from.Hex()},
		{Type: "Hash160", Value: to.Hex()},
		{Type: "Integer", Value: fmt.Sprintf("%d", amount)},
		{Type: dataType, Value: data},
	}
	res, err := t.client.InvokeFunction(ctx, t.hash, "transfer", params, []Signer{{Account: from.Hex(), Scopes: "CalledByEntry"}})
	if err != nil {
		return err
	}
	if !res.Halted() {
		return fmt.Errorf("transfer %d from %s faulted: %s", amount, from, res.Exception)
	}
	if len(res.Stack) == 0 {
		return fmt.Errorf("transfer returned an empty stack")
	}
	ok, err := ParseBoolean(res.Stack[0])
	if err != nil {
		return fmt.Errorf("transfer result: %w", err)
	}
	if !ok {
		return fmt.Errorf("transfer %d from %s to %s rejected by %s", amount, from, to, t.hash)
	}

	if t.submitter == nil {
		return nil
	}
	if _, err := t.submitter.SubmitTransfer(ctx, TransferRequest{Token: t.id, From: from, To: to, Amount: amount, Memo: memo}); err != nil {
		return fmt.Errorf("submit transfer: %w", err)
	}
	return nil
}
