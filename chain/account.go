package chain

import (
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

// StoragePricePerByte is the yocto cost of one byte of contract storage.
var StoragePricePerByte = uint256.MustFromDecimal("10000000000000000000")

// IsValidAccountID reports whether id is a well-formed account id:
// 2-64 characters, lowercase alphanumeric segments joined by single
// '.', '-' or '_' separators, with no leading or trailing separator.
func IsValidAccountID(id string) bool {
	if len(id) < 2 || len(id) > 64 {
		return false
	}
	lastSep := true
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			lastSep = false
		case c == '.' || c == '-' || c == '_':
			if lastSep {
				return false
			}
			lastSep = true
		default:
			return false
		}
	}
	return !lastSep
}

// SubAccountID derives the child account "<name>.<parent>".
func SubAccountID(name, parent string) string {
	return name + "." + parent
}

const accountPrefix = "acct:"

// account is the persisted record for a chain account.
type account struct {
	Balance string `json:"balance"`
	Code    string `json:"code,omitempty"`
}

func loadAccount(kv state.KV, id string) (*account, error) {
	b, err := kv.Get(accountPrefix + id)
	if state.IsNotFound(err) {
		return nil, fault.Newf(fault.KindNotFound, "MB-CHN-001", "Account %s does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	var a account
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-CHN-002", "corrupt account record", err)
	}
	return &a, nil
}

func saveAccount(kv state.KV, id string, a *account) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fault.Wrap(fault.KindInternal, "MB-CHN-003", "account serialization failed", err)
	}
	return kv.Set(accountPrefix+id, b)
}

func accountExists(kv state.KV, id string) bool {
	return state.Has(kv, accountPrefix+id)
}

func (a *account) balance() (*uint256.Int, error) {
	if a.Balance == "" {
		return uint256.NewInt(0), nil
	}
	v, err := uint256.FromDecimal(a.Balance)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-CHN-004", "corrupt account balance", err)
	}
	return v, nil
}

func (a *account) setBalance(v *uint256.Int) {
	a.Balance = v.Dec()
}

// creditAccount adds amount to id's balance inside kv.
func creditAccount(kv state.KV, id string, amount *uint256.Int) error {
	a, err := loadAccount(kv, id)
	if err != nil {
		return err
	}
	bal, err := a.balance()
	if err != nil {
		return err
	}
	sum, carry := new(uint256.Int).AddOverflow(bal, amount)
	if carry {
		return fault.New(fault.KindInternal, "MB-CHN-005", "balance overflow")
	}
	a.setBalance(sum)
	return saveAccount(kv, id, a)
}

// debitAccount removes amount from id's balance inside kv.
func debitAccount(kv state.KV, id string, amount *uint256.Int) error {
	a, err := loadAccount(kv, id)
	if err != nil {
		return err
	}
	bal, err := a.balance()
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fault.Newf(fault.KindInsufficientDeposit, "MB-CHN-006",
			"Account %s balance %s is below required %s", id, bal.Dec(), amount.Dec())
	}
	a.setBalance(new(uint256.Int).Sub(bal, amount))
	return saveAccount(kv, id, a)
}
