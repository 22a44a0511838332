package chain

import (
	"github.com/holiman/uint256"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage"
)

// Env is a contract call's view of the chain: caller identity, attached
// deposit, input, namespaced state, buffered logs, and any promises the call
// schedules.
//
// State writes go through the receipt's transaction and logs stay buffered;
// both are visible outside the call only if the receipt commits.
type Env struct {
	rt *Runtime
	tx *state.Tx

	// CurrentAccountID is the account the contract runs as.
	CurrentAccountID string
	// SignerAccountID is the account that signed the original transaction.
	SignerAccountID string
	// PredecessorAccountID is the account that invoked this call.
	PredecessorAccountID string
	// AttachedDeposit is the yocto amount attached to the call. Never nil.
	AttachedDeposit *uint256.Int
	// Input is the raw call payload.
	Input []byte

	promiseResult *PromiseResult
	logs          []string
	promises      []*Promise
}

// State returns the contract's private key-value namespace.
func (e *Env) State() state.KV {
	return state.Prefixed(e.tx, "c:"+e.CurrentAccountID+":")
}

// CodeStore returns the host's bytecode store.
func (e *Env) CodeStore() storage.CAS { return e.rt.code }

// Emit buffers one event log line.
func (e *Env) Emit(l event.Log) error {
	line, err := event.Render(l)
	if err != nil {
		return err
	}
	e.logs = append(e.logs, line)
	return nil
}

// Log buffers a plain log line.
func (e *Env) Log(line string) {
	e.logs = append(e.logs, line)
}

// NewPromise starts a promise batch against receiver. The batch is scheduled
// when the current call commits.
func (e *Env) NewPromise(receiver string) *Promise {
	p := &Promise{receiver: receiver}
	e.promises = append(e.promises, p)
	return p
}

// Result returns the promise result when the current call is a resolution
// callback.
func (e *Env) Result() (PromiseResult, bool) {
	if e.promiseResult == nil {
		return PromiseResult{}, false
	}
	return *e.promiseResult, true
}

// AssertPrivate rejects callers other than the contract account itself.
// Resolution callbacks use it to stay unreachable from the outside.
func (e *Env) AssertPrivate() error {
	if e.PredecessorAccountID != e.CurrentAccountID {
		return fault.New(fault.KindUnauthorized, "MB-CHN-010", "Method is private")
	}
	return nil
}

// AssertOneYocto rejects calls without at least 1 yoctoNEAR attached.
func (e *Env) AssertOneYocto() error {
	if e.AttachedDeposit.IsZero() {
		return fault.New(fault.KindInsufficientDeposit, "MB-CHN-011",
			"Requires attached deposit of at least 1 yoctoNEAR")
	}
	return nil
}
