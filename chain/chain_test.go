package chain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/ipfs/go-cid"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/memcas"
)

// scratch is a minimal contract used to exercise the runtime: it stores and
// returns values, fails on demand, and can spawn a deploy chain.
type scratch struct{}

func (scratch) Call(env *chain.Env, method string) ([]byte, error) {
	switch method {
	case "put":
		var in struct{ Key, Value string }
		if err := json.Unmarshal(env.Input, &in); err != nil {
			return nil, err
		}
		if err := env.State().Set(in.Key, []byte(in.Value)); err != nil {
			return nil, err
		}
		return nil, env.Emit(event.Registry("add_municipality", event.AddMunicipality{MunicipalityID: in.Value}))
	case "get":
		var in struct{ Key string }
		if err := json.Unmarshal(env.Input, &in); err != nil {
			return nil, err
		}
		return env.State().Get(in.Key)
	case "put_then_fail":
		if err := env.State().Set("poison", []byte("x")); err != nil {
			return nil, err
		}
		env.Log("should never surface")
		return nil, fault.New(fault.KindInvalidArgument, "T-001", "deliberate failure")
	case "deploy":
		var in struct {
			Account string
			Code    string
			Amount  string
		}
		if err := json.Unmarshal(env.Input, &in); err != nil {
			return nil, err
		}
		amount := uint256.MustFromDecimal(in.Amount)
		env.NewPromise(in.Account).
			CreateAccount().
			Transfer(amount).
			DeployContract([]byte(in.Code)).
			FunctionCall("new", nil, nil).
			Then("resolve", []byte(`{"account":"`+in.Account+`"}`))
		return nil, nil
	case "resolve":
		if err := env.AssertPrivate(); err != nil {
			return nil, err
		}
		res, ok := env.Result()
		if !ok {
			return nil, fault.New(fault.KindInternal, "T-002", "missing promise result")
		}
		if !res.Successful {
			return nil, fault.New(fault.KindRemoteFailed, "T-003", "deploy chain failed")
		}
		return nil, env.State().Set("deployed", []byte("yes"))
	case "mutate_in_view":
		return nil, env.State().Set("illegal", []byte("x"))
	}
	return nil, fault.Newf(fault.KindNotFound, "T-404", "unknown method %s", method)
}

// deployed is the handler instantiated for deployed bytecode in tests.
type deployed struct{ account string }

func (d deployed) Call(env *chain.Env, method string) ([]byte, error) {
	if method == "new" {
		return nil, env.State().Set("init", []byte("done"))
	}
	return nil, fault.Newf(fault.KindNotFound, "T-404", "unknown method %s", method)
}

func newRuntime(t *testing.T) *chain.Runtime {
	t.Helper()
	rt := chain.New(state.NewMemKV(), memcas.New())
	if err := rt.RegisterContract("registry.demo", scratch{}); err != nil {
		t.Fatalf("RegisterContract failed: %v", err)
	}
	if err := rt.CreateAccount("alice.demo", uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return rt
}

func TestIsValidAccountID(t *testing.T) {
	valid := []string{"ab", "alice.near", "sub.alice.near", "a-b_c.d", "token0.factory.demo"}
	for _, id := range valid {
		if !chain.IsValidAccountID(id) {
			t.Errorf("IsValidAccountID(%q) = false, want true", id)
		}
	}
	invalid := []string{
		"", "a", "Alice.near", ".alice", "alice.", "al..ice", "al.-ice",
		"has space", "emoji✓", strings.Repeat("a", 65),
	}
	for _, id := range invalid {
		if chain.IsValidAccountID(id) {
			t.Errorf("IsValidAccountID(%q) = true, want false", id)
		}
	}
}

func TestCallRoundTripAndEvents(t *testing.T) {
	rt := newRuntime(t)
	var sunk []string
	rt.SetEventSink(func(line string) { sunk = append(sunk, line) })

	res, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put",
		Args:     []byte(`{"Key":"k","Value":"springfield"}`),
		Signer:   "alice.demo",
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(res.Logs()) != 1 || !strings.HasPrefix(res.Logs()[0], event.Marker) {
		t.Fatalf("Logs = %v", res.Logs())
	}
	if len(sunk) != 1 {
		t.Fatalf("sink got %d lines, want 1", len(sunk))
	}

	got, err := rt.View("registry.demo", "get", []byte(`{"Key":"k"}`))
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if string(got) != "springfield" {
		t.Fatalf("View = %q", got)
	}
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	rt := newRuntime(t)
	var sunk []string
	rt.SetEventSink(func(line string) { sunk = append(sunk, line) })

	res, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put_then_fail",
		Signer:   "alice.demo",
	})
	if err == nil {
		t.Fatalf("Call should have failed")
	}
	if !fault.IsKind(err, fault.KindInvalidArgument) {
		t.Fatalf("err kind: %v", err)
	}
	if len(res.Logs()) != 0 || len(sunk) != 0 {
		t.Fatalf("failed call leaked logs: %v / %v", res.Logs(), sunk)
	}
	if _, err := rt.View("registry.demo", "get", []byte(`{"Key":"poison"}`)); err == nil {
		t.Fatalf("failed call leaked state")
	}
}

func TestDepositMovesBalances(t *testing.T) {
	rt := newRuntime(t)
	dep := uint256.NewInt(250)
	if _, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put",
		Args:     []byte(`{"Key":"k","Value":"v"}`),
		Signer:   "alice.demo",
		Deposit:  dep,
	}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	alice, err := rt.Balance("alice.demo")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if alice.Uint64() != 1_000_000-250 {
		t.Fatalf("alice balance = %s", alice.Dec())
	}
	reg, err := rt.Balance("registry.demo")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if reg.Uint64() != 250 {
		t.Fatalf("registry balance = %s", reg.Dec())
	}
}

func TestDepositRefundedOnFailure(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put_then_fail",
		Signer:   "alice.demo",
		Deposit:  uint256.NewInt(99),
	})
	if err == nil {
		t.Fatalf("Call should have failed")
	}
	alice, err := rt.Balance("alice.demo")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if alice.Uint64() != 1_000_000 {
		t.Fatalf("alice balance = %s, want untouched", alice.Dec())
	}
}

func TestInsufficientBalanceRejected(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put",
		Args:     []byte(`{"Key":"k","Value":"v"}`),
		Signer:   "alice.demo",
		Deposit:  uint256.NewInt(2_000_000),
	})
	if !fault.IsKind(err, fault.KindInsufficientDeposit) {
		t.Fatalf("err = %v, want InsufficientDeposit", err)
	}
}

func TestDeployChainSuccess(t *testing.T) {
	rt := newRuntime(t)
	rt.SetCodeFactory(func(code cid.Cid, accountID string) (chain.Handler, error) {
		return deployed{account: accountID}, nil
	})
	// Fund the scheduling contract so the Transfer action can be paid.
	if _, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put",
		Args:     []byte(`{"Key":"seed","Value":"v"}`),
		Signer:   "alice.demo",
		Deposit:  uint256.NewInt(500_000),
	}); err != nil {
		t.Fatalf("seeding call failed: %v", err)
	}

	res, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "deploy",
		Args:     []byte(`{"Account":"sub.registry.demo","Code":"wasm-v0","Amount":"400000"}`),
		Signer:   "alice.demo",
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	// Entry call, chain receipt, resolution callback.
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(res.Outcomes))
	}
	for i, o := range res.Outcomes {
		if !o.Ok {
			t.Fatalf("outcome %d failed: %v", i, o.Err)
		}
	}
	if !rt.AccountExists("sub.registry.demo") {
		t.Fatalf("sub account missing")
	}
	bal, err := rt.Balance("sub.registry.demo")
	if err != nil || bal.Uint64() != 400_000 {
		t.Fatalf("sub balance = %v, %v", bal, err)
	}
	got, err := rt.View("registry.demo", "get", []byte(`{"Key":"deployed"}`))
	if err != nil || string(got) != "yes" {
		t.Fatalf("callback state = %q, %v", got, err)
	}
	// The deployed contract's init method ran in its own namespace.
	if _, err := rt.View("sub.registry.demo", "new", nil); err == nil {
		t.Fatalf("new should not be re-invokable as a view without error")
	}
}

func TestDeployChainFailureResolvesWithFailure(t *testing.T) {
	rt := newRuntime(t)
	rt.SetCodeFactory(func(code cid.Cid, accountID string) (chain.Handler, error) {
		return nil, fault.New(fault.KindInternal, "T-BOOM", "bad bytecode")
	})

	res, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "deploy",
		Args:     []byte(`{"Account":"sub.registry.demo","Code":"wasm-v0","Amount":"0"}`),
		Signer:   "alice.demo",
	})
	if err != nil {
		t.Fatalf("entry call failed: %v", err)
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(res.Outcomes))
	}
	if res.Outcomes[1].Ok {
		t.Fatalf("chain receipt should have failed")
	}
	cb := res.Outcomes[2]
	if cb.Ok || !fault.IsKind(cb.Err, fault.KindRemoteFailed) {
		t.Fatalf("callback outcome: ok=%v err=%v", cb.Ok, cb.Err)
	}
	// The failed chain receipt is atomic: no account, no deploy.
	if rt.AccountExists("sub.registry.demo") {
		t.Fatalf("failed chain left the account behind")
	}
	if _, err := rt.View("registry.demo", "get", []byte(`{"Key":"deployed"}`)); err == nil {
		t.Fatalf("callback recorded success state on failure")
	}
}

func TestResolutionCallbackIsPrivate(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "resolve",
		Signer:   "alice.demo",
	})
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func TestViewMustNotMutate(t *testing.T) {
	rt := newRuntime(t)
	if _, err := rt.View("registry.demo", "mutate_in_view", nil); err == nil {
		t.Fatalf("mutating view should be rejected")
	}
	if _, err := rt.View("registry.demo", "get", []byte(`{"Key":"illegal"}`)); err == nil {
		t.Fatalf("rejected view still wrote state")
	}
}

func TestUnknownSignerRejected(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Call(chain.CallRequest{
		Contract: "registry.demo",
		Method:   "put",
		Args:     []byte(`{"Key":"k","Value":"v"}`),
		Signer:   "ghost.demo",
	})
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
