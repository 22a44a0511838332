// Package token implements the per-bond token contract deployed by the
// factory: NEP-171-shaped ownership with approval delegation and a royalty
// table.
package token

import (
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/contract"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

const (
	prefixTokens   = "tok:"
	prefixPerOwner = "own:"
	metadataKey    = "meta"
)

// basisPoints is the royalty denominator.
const basisPoints = 10_000

// Token is the per-token ownership record.
type Token struct {
	OwnerID            string            `json:"owner_id"`
	ApprovedAccountIDs map[string]uint64 `json:"approved_account_ids"`
	NextApprovalID     uint64            `json:"next_approval_id"`
	// Royalty maps accounts to basis points of every payout.
	Royalty map[string]uint32 `json:"royalty"`
}

// Contract is the token handler, bound to the account it was deployed to.
type Contract struct {
	AccountID string
}

var _ chain.Handler = Contract{}

func New(accountID string) Contract {
	return Contract{AccountID: accountID}
}

func (c Contract) Call(env *chain.Env, method string) ([]byte, error) {
	switch method {
	case "new":
		return nil, c.initialize(env)
	case "nft_mint":
		return nil, c.mint(env)
	case "nft_approve":
		return nil, c.approve(env)
	case "nft_transfer":
		return nil, c.transfer(env)
	case "nft_token":
		return c.viewToken(env)
	case "nft_tokens_for_owner":
		return c.viewTokensForOwner(env)
	case "nft_payout":
		return c.viewPayout(env)
	case "nft_metadata":
		return c.viewMetadata(env)
	case "owner":
		return c.viewOwner(env)
	}
	return nil, contract.UnknownMethod(method)
}

func (Contract) tokensByID(kv state.KV) state.LookupMap {
	return state.NewLookupMap(kv, prefixTokens)
}

func (Contract) tokensPerOwner(kv state.KV, accountID string) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixPerOwner+accountID+":")
}

func (c Contract) initialize(env *chain.Env) error {
	var args struct {
		OwnerID  string          `json:"owner_id"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if err := contract.Initialize(env.State(), args.OwnerID); err != nil {
		return err
	}
	if len(args.Metadata) > 0 {
		return env.State().Set(metadataKey, args.Metadata)
	}
	return nil
}

func (c Contract) loadToken(kv state.KV, tokenID string) (*Token, error) {
	b, err := c.tokensByID(kv).Get(tokenID)
	if state.IsNotFound(err) {
		return nil, fault.New(fault.KindNotFound, "MB-NFT-001", "No token")
	}
	if err != nil {
		return nil, err
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-NFT-002", "corrupt token record", err)
	}
	return &t, nil
}

func (c Contract) saveToken(kv state.KV, tokenID string, t *Token) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fault.Wrap(fault.KindInternal, "MB-NFT-003", "token serialization failed", err)
	}
	return c.tokensByID(kv).Set(tokenID, b)
}

func (c Contract) mint(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args struct {
		TokenID    string            `json:"token_id"`
		ReceiverID string            `json:"receiver_id"`
		Royalty    map[string]uint32 `json:"royalty"`
		Memo       *string           `json:"memo"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if args.TokenID == "" {
		return fault.New(fault.KindInvalidArgument, "MB-NFT-004", "token_id is required")
	}
	if !chain.IsValidAccountID(args.ReceiverID) {
		return fault.Newf(fault.KindInvalidArgument, "MB-NFT-005", "Invalid receiver account id %q", args.ReceiverID)
	}
	var total uint32
	for _, pts := range args.Royalty {
		total += pts
	}
	if total > basisPoints {
		return fault.New(fault.KindInvalidArgument, "MB-NFT-006", "Royalty exceeds 10000 basis points")
	}

	kv := env.State()
	if c.tokensByID(kv).Has(args.TokenID) {
		return fault.New(fault.KindAlreadyExists, "MB-NFT-007", "Token already exists")
	}
	t := &Token{
		OwnerID:            args.ReceiverID,
		ApprovedAccountIDs: map[string]uint64{},
		Royalty:            args.Royalty,
	}
	if err := c.saveToken(kv, args.TokenID, t); err != nil {
		return err
	}
	if _, err := c.tokensPerOwner(kv, args.ReceiverID).Insert(args.TokenID); err != nil {
		return err
	}
	return env.Emit(event.NFT(event.TagNftMint, event.NftMint{
		OwnerID:  args.ReceiverID,
		TokenIDs: []string{args.TokenID},
		Memo:     args.Memo,
	}))
}

// approve grants the given account the right to transfer the token once,
// under a per-token monotonically increasing approval id.
func (c Contract) approve(env *chain.Env) error {
	if err := env.AssertOneYocto(); err != nil {
		return err
	}
	var args struct {
		TokenID   string `json:"token_id"`
		AccountID string `json:"account_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	kv := env.State()
	t, err := c.loadToken(kv, args.TokenID)
	if err != nil {
		return err
	}
	if env.PredecessorAccountID != t.OwnerID {
		return fault.New(fault.KindUnauthorized, "MB-NFT-008", "Predecessor must be token owner")
	}
	if !chain.IsValidAccountID(args.AccountID) {
		return fault.Newf(fault.KindInvalidArgument, "MB-NFT-009", "Invalid account id %q", args.AccountID)
	}
	if t.ApprovedAccountIDs == nil {
		t.ApprovedAccountIDs = map[string]uint64{}
	}
	t.ApprovedAccountIDs[args.AccountID] = t.NextApprovalID
	t.NextApprovalID++
	return c.saveToken(kv, args.TokenID, t)
}

// transfer moves a token between owners. The sender must be the owner or an
// approved delegate; a supplied approval_id must match the recorded one
// exactly; self-transfers are rejected. Approvals are cleared on transfer
// while the approval counter and royalty table carry over.
func (c Contract) transfer(env *chain.Env) error {
	if err := env.AssertOneYocto(); err != nil {
		return err
	}
	var args struct {
		ReceiverID string  `json:"receiver_id"`
		TokenID    string  `json:"token_id"`
		ApprovalID *uint64 `json:"approval_id"`
		Memo       *string `json:"memo"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	sender := env.PredecessorAccountID
	kv := env.State()

	t, err := c.loadToken(kv, args.TokenID)
	if err != nil {
		return err
	}
	if sender != t.OwnerID {
		if _, ok := t.ApprovedAccountIDs[sender]; !ok {
			return fault.New(fault.KindUnauthorized, "MB-NFT-010", "Unauthorized")
		}
	}
	if args.ApprovalID != nil {
		actual, ok := t.ApprovedAccountIDs[sender]
		if !ok {
			return fault.New(fault.KindUnauthorized, "MB-NFT-011", "Sender is not approved account")
		}
		if actual != *args.ApprovalID {
			return fault.Newf(fault.KindInvalidArgument, "MB-NFT-012",
				"The actual approval_id %d is different from the given approval_id %d", actual, *args.ApprovalID)
		}
	}
	if t.OwnerID == args.ReceiverID {
		return fault.New(fault.KindInvalidArgument, "MB-NFT-013", "The token owner and receiver should be different")
	}
	if !chain.IsValidAccountID(args.ReceiverID) {
		return fault.Newf(fault.KindInvalidArgument, "MB-NFT-005", "Invalid receiver account id %q", args.ReceiverID)
	}

	removed, err := c.tokensPerOwner(kv, t.OwnerID).Remove(args.TokenID)
	if err != nil {
		return err
	}
	if !removed {
		return fault.New(fault.KindInternal, "MB-NFT-014", "Token should be owned by the sender")
	}
	if _, err := c.tokensPerOwner(kv, args.ReceiverID).Insert(args.TokenID); err != nil {
		return err
	}

	oldOwner := t.OwnerID
	next := &Token{
		OwnerID:            args.ReceiverID,
		ApprovedAccountIDs: map[string]uint64{},
		NextApprovalID:     t.NextApprovalID,
		Royalty:            t.Royalty,
	}
	if err := c.saveToken(kv, args.TokenID, next); err != nil {
		return err
	}

	if args.Memo != nil {
		env.Log("Memo: " + *args.Memo)
	}
	var authorizedID *string
	if args.ApprovalID != nil {
		s := sender
		authorizedID = &s
	}
	return env.Emit(event.NFT(event.TagNftTransfer, event.NftTransfer{
		AuthorizedID: authorizedID,
		OldOwnerID:   oldOwner,
		NewOwnerID:   args.ReceiverID,
		TokenIDs:     []string{args.TokenID},
		Memo:         args.Memo,
	}))
}

// TokenView is the external shape of a token record.
type TokenView struct {
	TokenID            string            `json:"token_id"`
	OwnerID            string            `json:"owner_id"`
	ApprovedAccountIDs map[string]uint64 `json:"approved_account_ids"`
	Royalty            map[string]uint32 `json:"royalty"`
}

func (c Contract) viewToken(env *chain.Env) ([]byte, error) {
	var args struct {
		TokenID string `json:"token_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	b, err := c.tokensByID(env.State()).Get(args.TokenID)
	if state.IsNotFound(err) {
		return contract.MarshalResult(nil)
	}
	if err != nil {
		return nil, err
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-NFT-002", "corrupt token record", err)
	}
	return contract.MarshalResult(TokenView{
		TokenID:            args.TokenID,
		OwnerID:            t.OwnerID,
		ApprovedAccountIDs: t.ApprovedAccountIDs,
		Royalty:            t.Royalty,
	})
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
	ids, err := c.tokensPerOwner(env.State(), args.AccountID).Window(from, limit)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(ids)
}

// viewPayout splits an amount across the royalty table, with the owner
// receiving the remainder of the 10000 basis points.
func (c Contract) viewPayout(env *chain.Env) ([]byte, error) {
	var args struct {
		TokenID string `json:"token_id"`
		Balance string `json:"balance"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	t, err := c.loadToken(env.State(), args.TokenID)
	if err != nil {
		return nil, err
	}
	amount, err := uint256.FromDecimal(args.Balance)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "MB-NFT-015", "malformed balance", err)
	}

	payout := make(map[string]string, len(t.Royalty)+1)
	var total uint32
	for acct, pts := range t.Royalty {
		if acct == t.OwnerID {
			continue
		}
		payout[acct] = royaltyToPayout(pts, amount).Dec()
		total += pts
	}
	payout[t.OwnerID] = royaltyToPayout(basisPoints-total, amount).Dec()
	return contract.MarshalResult(struct {
		Payout map[string]string `json:"payout"`
	}{Payout: payout})
}

func royaltyToPayout(pts uint32, amount *uint256.Int) *uint256.Int {
	out := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(pts)))
	return out.Div(out, uint256.NewInt(basisPoints))
}

func (c Contract) viewMetadata(env *chain.Env) ([]byte, error) {
	b, err := env.State().Get(metadataKey)
	if state.IsNotFound(err) {
		return contract.MarshalResult(nil)
	}
	return b, err
}

func (c Contract) viewOwner(env *chain.Env) ([]byte, error) {
	owner, err := contract.Owner(env.State())
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(owner)
}
