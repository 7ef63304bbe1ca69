package chain

import (
	"errors"
	"fmt"
	"strings"
)

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCError is a JSON-RPC error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// isUnknownContract reports whether the node rejected a contract lookup
// because nothing is deployed at the hash.
func isUnknownContract(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "unknown contract") || strings.Contains(msg, "not found")
}

// ContractParam is an invokefunction argument.
type ContractParam struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Signer is a witness scope attached to a test invocation.
type Signer struct {
	Account string `json:"account"`
	Scopes  string `json:"scopes"`
}

// StackItem is a Neo VM stack item as returned by invokefunction.
type StackItem struct {
	Type  string
	Value string
}

// InvokeResult is the outcome of a read-only invocation.
type InvokeResult struct {
	State       string
	GasConsumed string
	Exception   string
	Stack       []StackItem
}

// Halted reports whether the VM finished without fault.
func (r *InvokeResult) Halted() bool {
	return r.State == "HALT"
}

// isUnknownTransaction reports whether the node has no record of a
// transaction yet.
func isUnknownTransaction(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "unknown transaction") || strings.Contains(msg, "not found")
}

// Execution is one trigger execution of an application log.
type Execution struct {
	Trigger     string
	VMState     string
	Exception   string
	GasConsumed string
}

// ApplicationLog is the result of getapplicationlog.
type ApplicationLog struct {
	TxHash     string
	Executions []Execution
}

// Halted reports whether the application execution finished without fault.
func (l *ApplicationLog) Halted() bool {
	for _, e := range l.Executions {
		if e.Trigger == "" || strings.EqualFold(e.Trigger, "Application") {
			return e.VMState == "HALT"
		}
	}
	return false
}

// Exception returns the first execution exception.
func (l *ApplicationLog) Exception() string {
	for _, e := range l.Executions {
		if e.Exception != "" {
			return e.Exception
		}
	}
	return ""
}
