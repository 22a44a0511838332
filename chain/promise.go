package chain

import "github.com/holiman/uint256"

type actionKind int

const (
	actionCreateAccount actionKind = iota
	actionTransfer
	actionDeployContract
	actionFunctionCall
)

type action struct {
	kind   actionKind
	amount *uint256.Int
	code   []byte
	method string
	args   []byte
}

// Promise is a batch of actions against a single receiver account, with an
// optional resolution callback on the scheduling account.
//
// Promises are collected while a call executes and become receipts only if
// the call commits; a failed call schedules nothing.
type Promise struct {
	receiver string
	actions  []action

	thenMethod string
	thenArgs   []byte
}

// CreateAccount schedules creation of the receiver account.
func (p *Promise) CreateAccount() *Promise {
	p.actions = append(p.actions, action{kind: actionCreateAccount})
	return p
}

// Transfer schedules a balance transfer from the scheduling account.
func (p *Promise) Transfer(amount *uint256.Int) *Promise {
	p.actions = append(p.actions, action{kind: actionTransfer, amount: amount.Clone()})
	return p
}

// DeployContract schedules deployment of bytecode to the receiver.
func (p *Promise) DeployContract(code []byte) *Promise {
	cp := make([]byte, len(code))
	copy(cp, code)
	p.actions = append(p.actions, action{kind: actionDeployContract, code: cp})
	return p
}

// FunctionCall schedules a method call on the receiver with an attached
// deposit (nil means zero).
func (p *Promise) FunctionCall(method string, args []byte, deposit *uint256.Int) *Promise {
	a := action{kind: actionFunctionCall, method: method, args: append([]byte(nil), args...)}
	if deposit != nil {
		a.amount = deposit.Clone()
	}
	p.actions = append(p.actions, a)
	return p
}

// Then attaches a one-shot resolution callback, delivered to the scheduling
// account exactly once after the promise settles, whether it succeeded or
// failed.
func (p *Promise) Then(method string, args []byte) *Promise {
	p.thenMethod = method
	p.thenArgs = append([]byte(nil), args...)
	return p
}

// PromiseResult is what a resolution callback observes.
type PromiseResult struct {
	Successful bool
	// Value holds the settled call's return bytes when Successful.
	Value []byte
	// Failure carries the remote error text when not Successful.
	Failure string
}
