// Package custody implements the custodial token ledger: which user holds
// which deployed token, which chain account each user has linked, and the
// orchestration of handing a token back to its owner's own account.
package custody

import (
	"github.com/holiman/uint256"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/contract"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

const (
	prefixTokensPerOwner = "tpo:"
	prefixUserAccounts   = "ua:"
)

// Delimiter joins a token account id and a token id into the ledger's pair
// encoding. Token ids never contain it; account ids cannot.
const Delimiter = ":"

// PairKey encodes a custodial entry.
func PairKey(tokenAccountID, tokenID string) string {
	return tokenAccountID + Delimiter + tokenID
}

// Contract is the custody handler.
type Contract struct{}

var _ chain.Handler = Contract{}

func (c Contract) Call(env *chain.Env, method string) ([]byte, error) {
	switch method {
	case "new":
		return nil, c.initialize(env)
	case "add_new_token_for_owner":
		return nil, c.addTokenForOwner(env)
	case "link_account_to_user":
		return nil, c.linkAccount(env)
	case "send_token_to_owner":
		return nil, c.sendTokenToOwner(env)
	case "resolve_transfer":
		return nil, c.resolveTransfer(env)
	case "tokens_for_owner":
		return c.viewTokensForOwner(env)
	case "get_account_for_user":
		return c.viewAccountForUser(env)
	case "owner":
		return c.viewOwner(env)
	}
	return nil, contract.UnknownMethod(method)
}

func (Contract) tokensPerOwner(kv state.KV, ownerID string) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixTokensPerOwner+ownerID+":")
}

func (Contract) userAccounts(kv state.KV) state.LookupMap {
	return state.NewLookupMap(kv, prefixUserAccounts)
}

func (c Contract) initialize(env *chain.Env) error {
	var args struct {
		OwnerID string `json:"owner_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	return contract.Initialize(env.State(), args.OwnerID)
}

func (c Contract) addTokenForOwner(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args struct {
		OwnerID        string  `json:"owner_id"`
		TokenAccountID string  `json:"token_account_id"`
		TokenID        string  `json:"token_id"`
		Memo           *string `json:"memo"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if args.OwnerID == "" || args.TokenAccountID == "" || args.TokenID == "" {
		return fault.New(fault.KindInvalidArgument, "MB-CUS-001", "owner_id, token_account_id and token_id are required")
	}

	ok, err := c.tokensPerOwner(env.State(), args.OwnerID).Insert(PairKey(args.TokenAccountID, args.TokenID))
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.KindAlreadyExists, "MB-CUS-002", "Token info already exists")
	}
	return env.Emit(event.Registry(event.TagAddToken, event.AddToken{
		OwnerID:        args.OwnerID,
		TokenAccountID: args.TokenAccountID,
		TokenID:        args.TokenID,
		Memo:           args.Memo,
	}))
}

// linkAccount is the one upsert in the system. A first link and a changed
// link emit different events; re-linking the same account is a silent no-op.
func (c Contract) linkAccount(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args struct {
		UserID    string `json:"user_id"`
		AccountID string `json:"account_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if args.UserID == "" {
		return fault.New(fault.KindInvalidArgument, "MB-CUS-003", "user_id is required")
	}
	if !chain.IsValidAccountID(args.AccountID) {
		return fault.Newf(fault.KindInvalidArgument, "MB-CUS-004", "Invalid account id %q", args.AccountID)
	}

	accounts := c.userAccounts(env.State())
	prev, err := accounts.Get(args.UserID)
	switch {
	case state.IsNotFound(err):
		if err := accounts.Set(args.UserID, []byte(args.AccountID)); err != nil {
			return err
		}
		return env.Emit(event.Registry(event.TagLinkAccount, event.LinkAccount{
			UserID:    args.UserID,
			AccountID: args.AccountID,
		}))
	case err != nil:
		return err
	case string(prev) == args.AccountID:
		return nil
	default:
		if err := accounts.Set(args.UserID, []byte(args.AccountID)); err != nil {
			return err
		}
		return env.Emit(event.Registry(event.TagChangeAccount, event.ChangeAccount{
			UserID:       args.UserID,
			OldAccountID: string(prev),
			NewAccountID: args.AccountID,
		}))
	}
}

type sendArgs struct {
	OwnerID        string  `json:"owner_id"`
	TokenAccountID string  `json:"token_account_id"`
	TokenID        string  `json:"token_id"`
	TransferMemo   *string `json:"transfer_memo"`
	ResolveMemo    *string `json:"resolve_memo"`
}

type resolveTransferArgs struct {
	OwnerID        string  `json:"owner_id"`
	TokenAccountID string  `json:"token_account_id"`
	TokenID        string  `json:"token_id"`
	Memo           *string `json:"memo"`
}

type nftTransferArgs struct {
	ReceiverID string  `json:"receiver_id"`
	TokenID    string  `json:"token_id"`
	ApprovalID *uint64 `json:"approval_id"`
	Memo       *string `json:"memo"`
}

// sendTokenToOwner starts the release of a custodial token to the owner's
// linked account. Only that account may trigger it, and the ledger entry is
// removed only after the on-token transfer is observed to succeed.
func (c Contract) sendTokenToOwner(env *chain.Env) error {
	var args sendArgs
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	kv := env.State()

	linked, err := c.userAccounts(kv).Get(args.OwnerID)
	if state.IsNotFound(err) {
		return fault.New(fault.KindNotFound, "MB-CUS-005", "No account linked to user")
	}
	if err != nil {
		return err
	}
	if env.PredecessorAccountID != string(linked) {
		return fault.New(fault.KindUnauthorized, "MB-CUS-006", "Caller is not the owner of the account")
	}
	held, err := c.tokensPerOwner(kv, args.OwnerID).Contains(PairKey(args.TokenAccountID, args.TokenID))
	if err != nil {
		return err
	}
	if !held {
		return fault.New(fault.KindNotFound, "MB-CUS-007", "Owner does not own provided token")
	}

	transferArgs, err := contract.MarshalResult(nftTransferArgs{
		ReceiverID: string(linked),
		TokenID:    args.TokenID,
		Memo:       args.TransferMemo,
	})
	if err != nil {
		return err
	}
	resolveArgs, err := contract.MarshalResult(resolveTransferArgs{
		OwnerID:        args.OwnerID,
		TokenAccountID: args.TokenAccountID,
		TokenID:        args.TokenID,
		Memo:           args.ResolveMemo,
	})
	if err != nil {
		return err
	}

	env.NewPromise(args.TokenAccountID).
		FunctionCall("nft_transfer", transferArgs, uint256.NewInt(1)).
		Then("resolve_transfer", resolveArgs)
	return nil
}

// resolveTransfer settles the release. The ledger entry is dropped only when
// the token contract reported success; a failed transfer keeps custody
// intact and emits nothing.
func (c Contract) resolveTransfer(env *chain.Env) error {
	if err := env.AssertPrivate(); err != nil {
		return err
	}
	var args resolveTransferArgs
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	res, ok := env.Result()
	if !ok {
		return fault.New(fault.KindInternal, "MB-CUS-008", "resolve_transfer called outside a resolution")
	}
	if !res.Successful {
		return fault.New(fault.KindRemoteFailed, "MB-CUS-009", "Failed to transfer token to owner")
	}

	removed, err := c.tokensPerOwner(env.State(), args.OwnerID).Remove(PairKey(args.TokenAccountID, args.TokenID))
	if err != nil {
		return err
	}
	if !removed {
		return fault.New(fault.KindNotFound, "MB-CUS-010", "The token was not found in the owners token set")
	}
	return env.Emit(event.Registry(event.TagSendToken, event.SendToken{
		OwnerID:        args.OwnerID,
		TokenAccountID: args.TokenAccountID,
		TokenID:        args.TokenID,
		Memo:           args.Memo,
	}))
}

func (c Contract) viewTokensForOwner(env *chain.Env) ([]byte, error) {
	var args struct {
		AccountID string `json:"account_id"`
		contract.Pagination
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	from, limit, err := args.Window()
	if err != nil {
		return nil, err
	}
	out, err := c.tokensPerOwner(env.State(), args.AccountID).Window(from, limit)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(out)
}

func (c Contract) viewAccountForUser(env *chain.Env) ([]byte, error) {
	var args struct {
		UserID string `json:"user_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	acct, err := c.userAccounts(env.State()).Get(args.UserID)
	if state.IsNotFound(err) {
		return contract.MarshalResult(nil)
	}
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(string(acct))
}

func (c Contract) viewOwner(env *chain.Env) ([]byte, error) {
	owner, err := contract.Owner(env.State())
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(owner)
}
