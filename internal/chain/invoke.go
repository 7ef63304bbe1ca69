package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// InvokeFunction test-invokes a contract method. Nothing is broadcast.
func (c *Client) InvokeFunction(ctx context.Context, scriptHash, method string, params []ContractParam, signers []Signer) (*InvokeResult, error) {
	if params == nil {
		params = []ContractParam{}
	}
	args := []interface{}{scriptHash, method, params}
	if len(signers) > 0 {
		args = append(args, signers)
	}
	result, err := c.Call(ctx, "invokefunction", args)
	if err != nil {
		return nil, fmt.Errorf("invoke %s.%s: %w", scriptHash, method, err)
	}
	return parseInvokeResult(result), nil
}

// InvokeRead test-invokes a parameterless getter and returns the top of the
// stack. A FAULT state is an error.
func (c *Client) InvokeRead(ctx context.Context, scriptHash, method string, params ...ContractParam) (StackItem, error) {
	res, err := c.InvokeFunction(ctx, scriptHash, method, params, nil)
	if err != nil {
		return StackItem{}, err
	}
	if !res.Halted() {
		return StackItem{}, fmt.Errorf("%s failed: %s %s", method, res.State, res.Exception)
	}
	if len(res.Stack) == 0 {
		return StackItem{}, fmt.Errorf("%s returned an empty stack", method)
	}
	return res.Stack[0], nil
}

// ContractState is the subset of getcontractstate used to identify tokens.
type ContractState struct {
	ID       int64
	Hash     string
	Name     string
	Standard []string
}

// SupportsStandard reports whether the manifest declares the standard.
func (s ContractState) SupportsStandard(name string) bool {
	for _, std := range s.Standard {
		if std == name {
			return true
		}
	}
	return false
}

// GetContractState fetches a deployed contract's manifest summary.
func (c *Client) GetContractState(ctx context.Context, scriptHash string) (*ContractState, error) {
	result, err := c.Call(ctx, "getcontractstate", []interface{}{scriptHash})
	if err != nil {
		return nil, err
	}
	state := &ContractState{
		ID:   result.Get("id").Int(),
		Hash: result.Get("hash").String(),
		Name: result.Get("manifest.name").String(),
	}
	result.Get("manifest.supportedstandards").ForEach(func(_, v gjson.Result) bool {
		state.Standard = append(state.Standard, v.String())
		return true
	})
	return state, nil
}

func parseInvokeResult(result gjson.Result) *InvokeResult {
	res := &InvokeResult{
		State:       result.Get("state").String(),
		GasConsumed: result.Get("gasconsumed").String(),
		Exception:   result.Get("exception").String(),
	}
	result.Get("stack").ForEach(func(_, item gjson.Result) bool {
		res.Stack = append(res.Stack, StackItem{
			Type:  item.Get("type").String(),
			Value: item.Get("value").String(),
		})
		return true
	})
	return res
}

// InvokeScript test-runs a script with the given signers. Nothing is
// broadcast; the result carries the system fee as GasConsumed.
func (c *Client) InvokeScript(ctx context.Context, script []byte, signers []Signer) (*InvokeResult, error) {
	args := []interface{}{base64.StdEncoding.EncodeToString(script)}
	if len(signers) > 0 {
		args = append(args, signers)
	}
	result, err := c.Call(ctx, "invokescript", args)
	if err != nil {
		return nil, fmt.Errorf("invoke script: %w", err)
	}
	return parseInvokeResult(result), nil
}

// CalculateNetworkFee asks the node for the network fee of a serialized
// transaction.
func (c *Client) CalculateNetworkFee(ctx context.Context, raw []byte) (int64, error) {
	result, err := c.Call(ctx, "calculatenetworkfee", []interface{}{base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		return 0, err
	}
	fee, err := strconv.ParseInt(result.Get("networkfee").String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("calculatenetworkfee: %w", err)
	}
	return fee, nil
}

// SendRawTransaction relays a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	result, err := c.Call(ctx, "sendrawtransaction", []interface{}{base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		return "", err
	}
	hash := result.Get("hash").String()
	if hash == "" {
		return "", fmt.Errorf("sendrawtransaction: response has no hash")
	}
	return hash, nil
}

// GetApplicationLog fetches the execution log of a persisted transaction.
func (c *Client) GetApplicationLog(ctx context.Context, txHash string) (*ApplicationLog, error) {
	result, err := c.Call(ctx, "getapplicationlog", []interface{}{txHash})
	if err != nil {
		return nil, err
	}
	appLog := &ApplicationLog{TxHash: result.Get("txid").String()}
	result.Get("executions").ForEach(func(_, e gjson.Result) bool {
		appLog.Executions = append(appLog.Executions, Execution{
			Trigger:     e.Get("trigger").String(),
			VMState:     e.Get("vmstate").String(),
			Exception:   e.Get("exception").String(),
			GasConsumed: e.Get("gasconsumed").String(),
		})
		return true
	})
	return appLog, nil
}

// WaitForApplicationLog polls until the transaction is persisted or ctx is
// done. An unknown transaction is treated as not yet included.
func (c *Client) WaitForApplicationLog(ctx context.Context, txHash string, pollInterval time.Duration) (*ApplicationLog, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			appLog, err := c.GetApplicationLog(ctx, txHash)
			if err != nil {
				if isUnknownTransaction(err) {
					continue
				}
				return nil, err
			}
			return appLog, nil
		}
	}
}

// NetworkMagic returns the configured network magic, asking the node when
// none was configured.
func (c *Client) NetworkMagic(ctx context.Context) (uint32, error) {
	if c.networkID != 0 {
		return c.networkID, nil
	}
	result, err := c.Call(ctx, "getversion", nil)
	if err != nil {
		return 0, err
	}
	magic := result.Get("protocol.network").Uint()
	if magic == 0 || magic > math.MaxUint32 {
		return 0, fmt.Errorf("getversion: unexpected network %s", result.Get("protocol.network").Raw)
	}
	return uint32(magic), nil
}
