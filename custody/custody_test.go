package custody_test

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/custody"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/memcas"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/token"
)

const (
	custodyAccount = "custody.demo"
	tokenAccount   = "token0.factory.demo"
	ownerAccount   = "gov.demo"
	aliceAccount   = "alice.demo"
	userID         = "user-1"
)

func newHarness(t *testing.T) *chain.Runtime {
	t.Helper()
	rt := chain.New(state.NewMemKV(), memcas.New())

	// The custody contract attaches 1 yocto to nft_transfer calls.
	if err := rt.CreateAccount(custodyAccount, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := rt.RegisterContract(custodyAccount, custody.Contract{}); err != nil {
		t.Fatalf("RegisterContract failed: %v", err)
	}
	if err := rt.RegisterContract(tokenAccount, token.New(tokenAccount)); err != nil {
		t.Fatalf("RegisterContract failed: %v", err)
	}
	if err := rt.CreateAccount(ownerAccount, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := rt.CreateAccount(aliceAccount, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	mustOwnerCall(t, rt, custodyAccount, "new", `{"owner_id":"`+ownerAccount+`"}`)
	mustOwnerCall(t, rt, tokenAccount, "new", `{"owner_id":"`+ownerAccount+`"}`)
	return rt
}

func mustOwnerCall(t *testing.T, rt *chain.Runtime, contract, method, args string) chain.CallResult {
	t.Helper()
	res, err := rt.Call(chain.CallRequest{
		Contract: contract,
		Method:   method,
		Args:     []byte(args),
		Signer:   ownerAccount,
	})
	if err != nil {
		t.Fatalf("%s failed: %v", method, err)
	}
	return res
}

// mintToCustody puts a token into custody on-chain and records the pair in
// the ledger.
func mintToCustody(t *testing.T, rt *chain.Runtime, tokenID string) {
	t.Helper()
	mustOwnerCall(t, rt, tokenAccount, "nft_mint",
		`{"token_id":"`+tokenID+`","receiver_id":"`+custodyAccount+`"}`)
	mustOwnerCall(t, rt, custodyAccount, "add_new_token_for_owner",
		`{"owner_id":"`+userID+`","token_account_id":"`+tokenAccount+`","token_id":"`+tokenID+`"}`)
}

func linkAlice(t *testing.T, rt *chain.Runtime) {
	t.Helper()
	mustOwnerCall(t, rt, custodyAccount, "link_account_to_user",
		`{"user_id":"`+userID+`","account_id":"`+aliceAccount+`"}`)
}

func eventTags(logs []string) []string {
	var tags []string
	for _, line := range logs {
		l, err := event.Parse(line)
		if err != nil {
			continue
		}
		tags = append(tags, l.Event)
	}
	return tags
}

func heldTokens(t *testing.T, rt *chain.Runtime) []string {
	t.Helper()
	b, err := rt.View(custodyAccount, "tokens_for_owner", []byte(`{"account_id":"`+userID+`"}`))
	if err != nil {
		t.Fatalf("tokens_for_owner failed: %v", err)
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("tokens_for_owner JSON: %v", err)
	}
	return out
}

func TestAddTokenForOwner(t *testing.T) {
	rt := newHarness(t)
	res := mustOwnerCall(t, rt, custodyAccount, "add_new_token_for_owner",
		`{"owner_id":"user-1","token_account_id":"`+tokenAccount+`","token_id":"bond-1","memo":"tranche A"}`)
	if tags := eventTags(res.Logs()); len(tags) != 1 || tags[0] != "add_token" {
		t.Fatalf("events = %v", tags)
	}
	if held := heldTokens(t, rt); len(held) != 1 || held[0] != tokenAccount+":bond-1" {
		t.Fatalf("held = %v", held)
	}
}

func TestAddTokenForOwnerDuplicateFatal(t *testing.T) {
	rt := newHarness(t)
	args := `{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`
	mustOwnerCall(t, rt, custodyAccount, "add_new_token_for_owner", args)
	_, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "add_new_token_for_owner",
		Args:     []byte(args),
		Signer:   ownerAccount,
	})
	if !fault.IsKind(err, fault.KindAlreadyExists) {
		t.Fatalf("err = %v, want AlreadyExists", err)
	}
}

func TestAddTokenForOwnerRequiresOwner(t *testing.T) {
	rt := newHarness(t)
	_, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "add_new_token_for_owner",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`),
		Signer:   aliceAccount,
	})
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func TestLinkAccountUpsertTransitions(t *testing.T) {
	rt := newHarness(t)

	// First link.
	res := mustOwnerCall(t, rt, custodyAccount, "link_account_to_user",
		`{"user_id":"user-1","account_id":"`+aliceAccount+`"}`)
	if tags := eventTags(res.Logs()); len(tags) != 1 || tags[0] != "link_account" {
		t.Fatalf("first link events = %v", tags)
	}

	// Same value: silent no-op.
	res = mustOwnerCall(t, rt, custodyAccount, "link_account_to_user",
		`{"user_id":"user-1","account_id":"`+aliceAccount+`"}`)
	if tags := eventTags(res.Logs()); len(tags) != 0 {
		t.Fatalf("idempotent relink events = %v", tags)
	}

	// Different value: overwrite with change_account naming old and new.
	res = mustOwnerCall(t, rt, custodyAccount, "link_account_to_user",
		`{"user_id":"user-1","account_id":"gov.demo"}`)
	logs := res.Logs()
	if tags := eventTags(logs); len(tags) != 1 || tags[0] != "change_account" {
		t.Fatalf("relink events = %v", tags)
	}
	l, err := event.Parse(logs[0])
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data := l.Data.([]any)[0].(map[string]any)
	if data["old_account_id"] != aliceAccount || data["new_account_id"] != "gov.demo" {
		t.Fatalf("change_account payload = %v", data)
	}

	b, err := rt.View(custodyAccount, "get_account_for_user", []byte(`{"user_id":"user-1"}`))
	if err != nil {
		t.Fatalf("get_account_for_user failed: %v", err)
	}
	var linked string
	if err := json.Unmarshal(b, &linked); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if linked != "gov.demo" {
		t.Fatalf("linked = %s", linked)
	}
}

func TestSendTokenToOwnerHappyPath(t *testing.T) {
	rt := newHarness(t)
	mintToCustody(t, rt, "bond-1")
	linkAlice(t, rt)

	res, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "send_token_to_owner",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`),
		Signer:   aliceAccount,
	})
	if err != nil {
		t.Fatalf("send_token_to_owner failed: %v", err)
	}
	if failed, ok := res.Failed(); ok {
		t.Fatalf("receipt failed: %v", failed.Err)
	}
	// Entry, nft_transfer receipt, resolve_transfer callback.
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(res.Outcomes))
	}
	tags := eventTags(res.Logs())
	if len(tags) != 2 || tags[0] != "nft_transfer" || tags[1] != "send_token" {
		t.Fatalf("events = %v", tags)
	}

	if held := heldTokens(t, rt); len(held) != 0 {
		t.Fatalf("ledger entry survived: %v", held)
	}

	// The NFT now belongs to the linked account.
	b, err := rt.View(tokenAccount, "nft_token", []byte(`{"token_id":"bond-1"}`))
	if err != nil {
		t.Fatalf("nft_token failed: %v", err)
	}
	var tok struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.Unmarshal(b, &tok); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if tok.OwnerID != aliceAccount {
		t.Fatalf("token owner = %s, want %s", tok.OwnerID, aliceAccount)
	}
}

func TestSendTokenRequiresLinkedAccount(t *testing.T) {
	rt := newHarness(t)
	mintToCustody(t, rt, "bond-1")

	_, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "send_token_to_owner",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`),
		Signer:   aliceAccount,
	})
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestSendTokenRejectsForeignCaller(t *testing.T) {
	rt := newHarness(t)
	mintToCustody(t, rt, "bond-1")
	linkAlice(t, rt)

	_, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "send_token_to_owner",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`),
		Signer:   ownerAccount,
	})
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
	if held := heldTokens(t, rt); len(held) != 1 {
		t.Fatalf("ledger mutated: %v", held)
	}
}

func TestSendTokenRequiresHeldPair(t *testing.T) {
	rt := newHarness(t)
	linkAlice(t, rt)

	_, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "send_token_to_owner",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-9"}`),
		Signer:   aliceAccount,
	})
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestSendTokenFailureKeepsCustody(t *testing.T) {
	rt := newHarness(t)
	linkAlice(t, rt)
	// The ledger claims custody of a token the custody account does not
	// actually own on-chain; the nft_transfer leg must fail.
	mustOwnerCall(t, rt, tokenAccount, "nft_mint",
		`{"token_id":"bond-1","receiver_id":"`+ownerAccount+`"}`)
	mustOwnerCall(t, rt, custodyAccount, "add_new_token_for_owner",
		`{"owner_id":"user-1","token_account_id":"`+tokenAccount+`","token_id":"bond-1"}`)

	res, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "send_token_to_owner",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`),
		Signer:   aliceAccount,
	})
	if err != nil {
		t.Fatalf("entry call failed: %v", err)
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(res.Outcomes))
	}
	if res.Outcomes[1].Ok {
		t.Fatalf("nft_transfer should have failed")
	}
	last := res.Outcomes[2]
	if last.Ok || !fault.IsKind(last.Err, fault.KindRemoteFailed) {
		t.Fatalf("resolution outcome: ok=%v err=%v", last.Ok, last.Err)
	}

	// Custody entry intact, nothing emitted.
	if held := heldTokens(t, rt); len(held) != 1 {
		t.Fatalf("ledger lost the entry: %v", held)
	}
	if tags := eventTags(res.Logs()); len(tags) != 0 {
		t.Fatalf("failed release emitted events: %v", tags)
	}
}

func TestResolveTransferIsPrivate(t *testing.T) {
	rt := newHarness(t)
	_, err := rt.Call(chain.CallRequest{
		Contract: custodyAccount,
		Method:   "resolve_transfer",
		Args:     []byte(`{"owner_id":"user-1","token_account_id":"` + tokenAccount + `","token_id":"bond-1"}`),
		Signer:   aliceAccount,
	})
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func TestGetAccountForUnknownUserIsNull(t *testing.T) {
	rt := newHarness(t)
	b, err := rt.View(custodyAccount, "get_account_for_user", []byte(`{"user_id":"ghost"}`))
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if string(b) != "null" {
		t.Fatalf("view = %s, want null", b)
	}
}
