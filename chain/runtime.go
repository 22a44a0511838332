// Package chain hosts the contracts: accounts and balances, method dispatch,
// promise scheduling with one-shot resolution callbacks, and per-receipt
// atomic state commits.
//
// Execution is single-threaded and receipt-ordered. A call runs to
// completion inside a state transaction; on failure the transaction and all
// buffered logs are dropped, so no partial writes are ever observable.
package chain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/ipfs/go-cid"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage"
)

// Handler executes contract methods. Implementations dispatch on the method
// name and read their input from env.Input.
type Handler interface {
	Call(env *Env, method string) ([]byte, error)
}

// CodeFactory instantiates a handler for bytecode deployed to an account.
// The runtime consults it the first time a deployed account is called.
type CodeFactory func(code cid.Cid, accountID string) (Handler, error)

// Runtime owns chain state and drives receipt execution.
type Runtime struct {
	kv      state.KV
	code    storage.CAS
	factory CodeFactory

	builtins map[string]Handler
	deployed map[string]Handler

	queue []*receipt
	sink  func(line string)
}

func New(kv state.KV, code storage.CAS) *Runtime {
	return &Runtime{
		kv:       kv,
		code:     code,
		builtins: make(map[string]Handler),
		deployed: make(map[string]Handler),
	}
}

// SetEventSink installs a receiver for committed log lines.
func (rt *Runtime) SetEventSink(fn func(line string)) { rt.sink = fn }

// SetCodeFactory installs the handler factory for deployed bytecode.
func (rt *Runtime) SetCodeFactory(f CodeFactory) { rt.factory = f }

// CreateAccount seeds an account with a starting balance.
func (rt *Runtime) CreateAccount(id string, balance *uint256.Int) error {
	if !IsValidAccountID(id) {
		return fault.Newf(fault.KindInvalidArgument, "MB-CHN-020", "Invalid account id %q", id)
	}
	if accountExists(rt.kv, id) {
		return fault.Newf(fault.KindAlreadyExists, "MB-CHN-021", "Account %s already exists", id)
	}
	a := &account{}
	if balance == nil {
		balance = uint256.NewInt(0)
	}
	a.setBalance(balance)
	return saveAccount(rt.kv, id, a)
}

// RegisterContract binds a host-implemented contract to an account,
// creating the account when absent.
func (rt *Runtime) RegisterContract(id string, h Handler) error {
	if h == nil {
		return fault.New(fault.KindInternal, "MB-CHN-022", "nil contract handler")
	}
	if !accountExists(rt.kv, id) {
		if err := rt.CreateAccount(id, uint256.NewInt(0)); err != nil {
			return err
		}
	}
	if _, dup := rt.builtins[id]; dup {
		return fault.Newf(fault.KindAlreadyExists, "MB-CHN-023", "Contract already registered on %s", id)
	}
	rt.builtins[id] = h
	return nil
}

// Deposit credits amount to an existing account.
func (rt *Runtime) Deposit(id string, amount *uint256.Int) error {
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	return creditAccount(rt.kv, id, amount)
}

// Balance returns the current balance of id.
func (rt *Runtime) Balance(id string) (*uint256.Int, error) {
	a, err := loadAccount(rt.kv, id)
	if err != nil {
		return nil, err
	}
	return a.balance()
}

// AccountExists reports whether id has an account record.
func (rt *Runtime) AccountExists(id string) bool { return accountExists(rt.kv, id) }

// CallRequest is a signed top-level invocation.
type CallRequest struct {
	Contract string
	Method   string
	Args     []byte
	Signer   string
	// Deposit is the attached yocto amount; nil means zero.
	Deposit *uint256.Int
}

// Outcome is the result of one executed receipt.
type Outcome struct {
	ReceiptID string
	Account   string
	Method    string
	Ok        bool
	Err       error
	Value     []byte
	Logs      []string
}

// CallResult collects the outcomes of a call and every receipt it spawned,
// in execution order. The first outcome is the entry call.
type CallResult struct {
	Outcomes []Outcome
}

// Value returns the entry call's return bytes.
func (r CallResult) Value() []byte {
	if len(r.Outcomes) == 0 {
		return nil
	}
	return r.Outcomes[0].Value
}

// Logs returns all committed log lines across receipts, in order.
func (r CallResult) Logs() []string {
	var out []string
	for _, o := range r.Outcomes {
		out = append(out, o.Logs...)
	}
	return out
}

// Failed returns the first failed outcome, if any.
func (r CallResult) Failed() (Outcome, bool) {
	for _, o := range r.Outcomes {
		if !o.Ok {
			return o, true
		}
	}
	return Outcome{}, false
}

type receipt struct {
	id          string
	predecessor string
	signer      string
	receiver    string
	actions     []action
	result      *PromiseResult

	cbReceiver string
	cbMethod   string
	cbArgs     []byte
}

// Call executes a top-level call and drains every receipt it schedules.
// The returned error is the entry call's error; failures in downstream
// receipts are reported through the outcomes.
func (rt *Runtime) Call(req CallRequest) (CallResult, error) {
	if req.Contract == "" || req.Method == "" {
		return CallResult{}, fault.New(fault.KindInvalidArgument, "MB-CHN-024", "contract and method are required")
	}
	if !accountExists(rt.kv, req.Signer) {
		return CallResult{}, fault.Newf(fault.KindNotFound, "MB-CHN-025", "Signer account %s does not exist", req.Signer)
	}
	deposit := req.Deposit
	if deposit == nil {
		deposit = uint256.NewInt(0)
	}

	entry := &receipt{
		id:          uuid.NewString(),
		predecessor: req.Signer,
		signer:      req.Signer,
		receiver:    req.Contract,
		actions: []action{{
			kind:   actionFunctionCall,
			method: req.Method,
			args:   append([]byte(nil), req.Args...),
			amount: deposit.Clone(),
		}},
	}

	rt.queue = append(rt.queue, entry)
	var res CallResult
	for len(rt.queue) > 0 {
		r := rt.queue[0]
		rt.queue = rt.queue[1:]
		out := rt.execute(r)
		res.Outcomes = append(res.Outcomes, out)

		if r.cbMethod != "" {
			pr := &PromiseResult{Successful: out.Ok, Value: out.Value}
			if out.Err != nil {
				pr.Failure = out.Err.Error()
			}
			rt.queue = append(rt.queue, &receipt{
				id:          uuid.NewString(),
				predecessor: r.cbReceiver,
				signer:      r.signer,
				receiver:    r.cbReceiver,
				actions: []action{{
					kind:   actionFunctionCall,
					method: r.cbMethod,
					args:   r.cbArgs,
				}},
				result: pr,
			})
		}
	}
	return res, res.Outcomes[0].Err
}

// View executes a read-only method. Views never authenticate, never carry a
// deposit, and must not write state or schedule promises.
func (rt *Runtime) View(contract, method string, args []byte) ([]byte, error) {
	tx := state.NewTx(rt.kv)
	defer tx.Discard()

	h, err := rt.handlerFor(tx, contract)
	if err != nil {
		return nil, err
	}
	env := &Env{
		rt:               rt,
		tx:               tx,
		CurrentAccountID: contract,
		AttachedDeposit:  uint256.NewInt(0),
		Input:            append([]byte(nil), args...),
	}
	v, err := h.Call(env, method)
	if err != nil {
		return nil, err
	}
	if tx.Dirty() || len(env.promises) > 0 {
		return nil, fault.Newf(fault.KindInternal, "MB-CHN-026", "view method %s mutated state", method)
	}
	return v, nil
}

func (rt *Runtime) execute(r *receipt) Outcome {
	out := Outcome{ReceiptID: r.id, Account: r.receiver}
	tx := state.NewTx(rt.kv)

	var logs []string
	var promises []*Promise
	var retVal []byte
	var err error

actions:
	for _, a := range r.actions {
		switch a.kind {
		case actionCreateAccount:
			if !IsValidAccountID(r.receiver) {
				err = fault.Newf(fault.KindInvalidArgument, "MB-CHN-020", "Invalid account id %q", r.receiver)
				break actions
			}
			if accountExists(tx, r.receiver) {
				err = fault.Newf(fault.KindAlreadyExists, "MB-CHN-021", "Account %s already exists", r.receiver)
				break actions
			}
			na := &account{}
			na.setBalance(uint256.NewInt(0))
			if err = saveAccount(tx, r.receiver, na); err != nil {
				break actions
			}

		case actionTransfer:
			if err = debitAccount(tx, r.predecessor, a.amount); err != nil {
				break actions
			}
			if err = creditAccount(tx, r.receiver, a.amount); err != nil {
				break actions
			}

		case actionDeployContract:
			var id cid.Cid
			id, err = rt.code.Put(a.code)
			if err != nil {
				break actions
			}
			var acct *account
			acct, err = loadAccount(tx, r.receiver)
			if err != nil {
				break actions
			}
			acct.Code = id.String()
			if err = saveAccount(tx, r.receiver, acct); err != nil {
				break actions
			}

		case actionFunctionCall:
			out.Method = a.method
			deposit := a.amount
			if deposit == nil {
				deposit = uint256.NewInt(0)
			}
			if !deposit.IsZero() {
				if err = debitAccount(tx, r.predecessor, deposit); err != nil {
					break actions
				}
				if err = creditAccount(tx, r.receiver, deposit); err != nil {
					break actions
				}
			}
			var h Handler
			h, err = rt.handlerFor(tx, r.receiver)
			if err != nil {
				break actions
			}
			env := &Env{
				rt:                   rt,
				tx:                   tx,
				CurrentAccountID:     r.receiver,
				SignerAccountID:      r.signer,
				PredecessorAccountID: r.predecessor,
				AttachedDeposit:      deposit,
				Input:                a.args,
				promiseResult:        r.result,
			}
			retVal, err = h.Call(env, a.method)
			logs = append(logs, env.logs...)
			promises = append(promises, env.promises...)
			if err != nil {
				break actions
			}
		}
	}

	if err != nil {
		tx.Discard()
		out.Err = err
		return out
	}
	if cerr := tx.Commit(); cerr != nil {
		out.Err = fault.Wrap(fault.KindInternal, "MB-CHN-027", "state commit failed", cerr)
		return out
	}

	out.Ok = true
	out.Value = retVal
	out.Logs = logs
	if rt.sink != nil {
		for _, line := range logs {
			rt.sink(line)
		}
	}

	for _, p := range promises {
		nr := &receipt{
			id:          uuid.NewString(),
			predecessor: r.receiver,
			signer:      r.signer,
			receiver:    p.receiver,
			actions:     p.actions,
		}
		if p.thenMethod != "" {
			nr.cbReceiver = r.receiver
			nr.cbMethod = p.thenMethod
			nr.cbArgs = p.thenArgs
		}
		rt.queue = append(rt.queue, nr)
	}
	return out
}

func (rt *Runtime) handlerFor(kv state.KV, id string) (Handler, error) {
	if h, ok := rt.builtins[id]; ok {
		return h, nil
	}
	if h, ok := rt.deployed[id]; ok {
		return h, nil
	}
	acct, err := loadAccount(kv, id)
	if err != nil {
		return nil, err
	}
	if acct.Code == "" {
		return nil, fault.Newf(fault.KindNotFound, "MB-CHN-028", "Account %s has no contract deployed", id)
	}
	if rt.factory == nil {
		return nil, fault.New(fault.KindInternal, "MB-CHN-029", "no code factory registered")
	}
	codeID, err := cid.Decode(acct.Code)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-CHN-030", "corrupt code id", err)
	}
	h, err := rt.factory(codeID, id)
	if err != nil {
		return nil, fmt.Errorf("instantiate contract on %s: %w", id, err)
	}
	rt.deployed[id] = h
	return h, nil
}
