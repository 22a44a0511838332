// Package contract holds the pieces shared by the registry contracts:
// argument decoding, pagination defaults, and the owner guard.
package contract

import (
	"encoding/json"
	"strconv"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

// DefaultViewLimit bounds paginated views when the caller omits a limit.
const DefaultViewLimit = 50

// ownerKey is where each contract stores its owner account id.
const ownerKey = "owner"

// ParseArgs decodes a call's JSON arguments. Empty input decodes as an
// all-defaults argument struct.
func ParseArgs(input []byte, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fault.Wrap(fault.KindInvalidArgument, "MB-ARG-002", "malformed call arguments", err)
	}
	return nil
}

// MarshalResult encodes a view result.
func MarshalResult(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-ARG-003", "result serialization failed", err)
	}
	return b, nil
}

// Pagination carries the windowing arguments of a view. FromIndex follows
// the U128 convention of arriving as a decimal string.
type Pagination struct {
	FromIndex *string `json:"from_index"`
	Limit     *uint64 `json:"limit"`
}

// Window resolves the pagination to concrete bounds.
func (p Pagination) Window() (from, limit uint64, err error) {
	limit = DefaultViewLimit
	if p.Limit != nil {
		limit = *p.Limit
	}
	if p.FromIndex != nil {
		from, err = strconv.ParseUint(*p.FromIndex, 10, 64)
		if err != nil {
			return 0, 0, fault.Wrap(fault.KindInvalidArgument, "MB-ARG-004", "malformed from_index", err)
		}
	}
	return from, limit, nil
}

// Initialize records the owner account id. It fails when called twice.
func Initialize(kv state.KV, ownerID string) error {
	if !chain.IsValidAccountID(ownerID) {
		return fault.Newf(fault.KindInvalidArgument, "MB-ARG-005", "Invalid owner account id %q", ownerID)
	}
	if state.Has(kv, ownerKey) {
		return fault.New(fault.KindAlreadyExists, "MB-ARG-006", "Contract is already initialized")
	}
	return kv.Set(ownerKey, []byte(ownerID))
}

// Owner returns the stored owner account id.
func Owner(kv state.KV) (string, error) {
	b, err := kv.Get(ownerKey)
	if state.IsNotFound(err) {
		return "", fault.New(fault.KindInternal, "MB-ARG-007", "Contract is not initialized")
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RequireOwner rejects callers other than the stored owner.
func RequireOwner(env *chain.Env) error {
	owner, err := Owner(env.State())
	if err != nil {
		return err
	}
	if env.PredecessorAccountID != owner {
		return fault.New(fault.KindUnauthorized, "MB-ARG-008", "Caller not owner")
	}
	return nil
}

// UnknownMethod is the uniform dispatch failure.
func UnknownMethod(method string) error {
	return fault.Newf(fault.KindNotFound, "MB-ARG-009", "Method %s does not exist", method)
}
