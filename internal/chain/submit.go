package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"sync"
	"time"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/services/vault"
	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

const (
	// DefaultTxWaitTimeout bounds the wait for a relayed transfer to land.
	DefaultTxWaitTimeout = 2 * time.Minute

	// DefaultPollInterval is the getapplicationlog polling interval.
	DefaultPollInterval = 2 * time.Second

	// DefaultValidBlocks is how many blocks a transfer stays valid for.
	DefaultValidBlocks = 240
)

// ErrNoSigningKey is returned for a transfer whose source account has no key
// in the keyring.
var ErrNoSigningKey = errors.New("chain: no signing key for transfer source")

// KeyringConfig configures a KeyringSubmitter.
type KeyringConfig struct {
	// Keys are WIF-encoded private keys.
	Keys           []string
	ValidBlocks    uint32
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// KeyringSubmitter signs NEP-17 transfers with the keys it holds, relays
// them and waits for them to be persisted. The ledger's own account must be
// in the keyring for withdrawals and claims; a deposit is only possible from
// an account whose key is held too.
type KeyringSubmitter struct {
	client   *Client
	accounts map[util.Uint160]*wallet.Account

	validBlocks    uint32
	confirmTimeout time.Duration
	poll           time.Duration

	mu    sync.Mutex
	magic netmode.Magic
}

var _ Submitter = (*KeyringSubmitter)(nil)

// NewKeyringSubmitter parses the keys in cfg.
func NewKeyringSubmitter(client *Client, cfg KeyringConfig) (*KeyringSubmitter, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("at least one signing key is required")
	}
	s := &KeyringSubmitter{
		client:         client,
		accounts:       make(map[util.Uint160]*wallet.Account, len(cfg.Keys)),
		validBlocks:    cfg.ValidBlocks,
		confirmTimeout: cfg.ConfirmTimeout,
		poll:           cfg.PollInterval,
	}
	if s.validBlocks == 0 {
		s.validBlocks = DefaultValidBlocks
	}
	if s.confirmTimeout <= 0 {
		s.confirmTimeout = DefaultTxWaitTimeout
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	for i, wif := range cfg.Keys {
		acc, err := wallet.NewAccountFromWIF(wif)
		if err != nil {
			return nil, fmt.Errorf("signing key %d: %w", i, err)
		}
		s.accounts[acc.ScriptHash()] = acc
	}
	return s, nil
}

// Holds reports whether the keyring can sign for p.
func (s *KeyringSubmitter) Holds(p domain.Principal) bool {
	u, err := p.ScriptHash()
	if err != nil {
		return false
	}
	_, ok := s.accounts[u]
	return ok
}

// SubmitTransfer signs and relays req, then waits for the application log.
// A relay or confirmation that fails without a definite answer from the node
// is reported as vault.ErrTransferInDoubt.
func (s *KeyringSubmitter) SubmitTransfer(ctx context.Context, req TransferRequest) (string, error) {
	from, err := req.From.ScriptHash()
	if err != nil {
		return "", fmt.Errorf("transfer source %s: %w", req.From, err)
	}
	acc, ok := s.accounts[from]
	if !ok {
		return "", fmt.Errorf("%s: %w", req.From, ErrNoSigningKey)
	}

	tx, err := s.buildTx(ctx, acc, req)
	if err != nil {
		return "", err
	}

	hash, err := s.client.SendRawTransaction(ctx, tx.Bytes())
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("relay transfer: %w", err)
		}
		return "", fmt.Errorf("relay transfer 0x%s: %w: %w", tx.Hash().StringLE(), err, vault.ErrTransferInDoubt)
	}

	wctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	appLog, err := s.client.WaitForApplicationLog(wctx, hash, s.poll)
	if err != nil {
		return hash, fmt.Errorf("confirm transfer %s: %w: %w", hash, err, vault.ErrTransferInDoubt)
	}
	if !appLog.Halted() {
		return hash, fmt.Errorf("transfer %s faulted on chain: %s", hash, appLog.Exception())
	}
	return hash, nil
}

func (s *KeyringSubmitter) buildTx(ctx context.Context, acc *wallet.Account, req TransferRequest) (*transaction.Transaction, error) {
	token, err := req.Token.ScriptHash()
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", req.Token, err)
	}
	to, err := req.To.ScriptHash()
	if err != nil {
		return nil, fmt.Errorf("transfer target %s: %w", req.To, err)
	}
	var data any
	if len(req.Memo) > 0 {
		data = req.Memo
	}
	script, err := smartcontract.CreateCallWithAssertScript(token, "transfer",
		acc.ScriptHash(), to, new(big.Int).SetUint64(req.Amount), data)
	if err != nil {
		return nil, fmt.Errorf("build transfer script: %w", err)
	}

	sender := acc.ScriptHash()
	res, err := s.client.InvokeScript(ctx, script, []Signer{{Account: "0x" + sender.StringLE(), Scopes: "CalledByEntry"}})
	if err != nil {
		return nil, err
	}
	if !res.Halted() {
		return nil, fmt.Errorf("transfer %d from %s faulted: %s", req.Amount, req.From, res.Exception)
	}
	sysFee, err := strconv.ParseInt(res.GasConsumed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("system fee %q: %w", res.GasConsumed, err)
	}
	count, err := s.client.GetBlockCount(ctx)
	if err != nil {
		return nil, err
	}
	magic, err := s.networkMagic(ctx)
	if err != nil {
		return nil, err
	}

	nonce := rand.Uint32()
	assemble := func(netFee int64) *transaction.Transaction {
		tx := transaction.New(script, sysFee)
		tx.Nonce = nonce
		tx.NetworkFee = netFee
		tx.ValidUntilBlock = uint32(count) + s.validBlocks
		tx.Signers = []transaction.Signer{{Account: sender, Scopes: transaction.CalledByEntry}}
		tx.Scripts = []transaction.Witness{{InvocationScript: []byte{}, VerificationScript: acc.GetVerificationScript()}}
		return tx
	}

	netFee, err := s.client.CalculateNetworkFee(ctx, assemble(0).Bytes())
	if err != nil {
		return nil, err
	}
	tx := assemble(netFee)
	if err := acc.SignTx(magic, tx); err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}
	return tx, nil
}

func (s *KeyringSubmitter) networkMagic(ctx context.Context) (netmode.Magic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.magic != 0 {
		return s.magic, nil
	}
	m, err := s.client.NetworkMagic(ctx)
	if err != nil {
		return 0, err
	}
	s.magic = netmode.Magic(m)
	return s.magic, nil
}
