// Package userregistry implements the approved-user registry: which users a
// municipality has admitted to its bond offerings.
package userregistry

import (
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/contract"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
)

const prefixUsers = "mu:"

// Contract is the user registry handler.
type Contract struct{}

var _ chain.Handler = Contract{}

func (c Contract) Call(env *chain.Env, method string) ([]byte, error) {
	switch method {
	case "new":
		return nil, c.initialize(env)
	case "add_user_to_municipality":
		return nil, c.addUser(env)
	case "get_users_for_municipality":
		return c.viewUsers(env)
	case "is_user_in_municipality":
		return c.viewIsUser(env)
	case "owner":
		return c.viewOwner(env)
	}
	return nil, contract.UnknownMethod(method)
}

func (Contract) users(kv state.KV, municipalityID string) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixUsers+municipalityID+":")
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

// addUser admits a user. The municipality's set is created on first use;
// re-admitting a user is fatal.
func (c Contract) addUser(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args struct {
		MunicipalityID string  `json:"municipality_id"`
		UserID         string  `json:"user_id"`
		Memo           *string `json:"memo"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if args.MunicipalityID == "" || args.UserID == "" {
		return fault.New(fault.KindInvalidArgument, "MB-USR-001", "municipality_id and user_id are required")
	}

	ok, err := c.users(env.State(), args.MunicipalityID).Insert(args.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.KindAlreadyExists, "MB-USR-002", "User already exists in the given municipality")
	}
	return env.Emit(event.Registry(event.TagAddUser, event.AddUser{
		UserID:         args.UserID,
		MunicipalityID: args.MunicipalityID,
		Memo:           args.Memo,
	}))
}

func (c Contract) viewUsers(env *chain.Env) ([]byte, error) {
	var args struct {
		MunicipalityID string `json:"municipality_id"`
		contract.Pagination
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	from, limit, err := args.Window()
	if err != nil {
		return nil, err
	}
	out, err := c.users(env.State(), args.MunicipalityID).Window(from, limit)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(out)
}

func (c Contract) viewIsUser(env *chain.Env) ([]byte, error) {
	var args struct {
		MunicipalityID string `json:"municipality_id"`
		UserID         string `json:"user_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	ok, err := c.users(env.State(), args.MunicipalityID).Contains(args.UserID)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(ok)
}

func (c Contract) viewOwner(env *chain.Env) ([]byte, error) {
	owner, err := contract.Owner(env.State())
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(owner)
}
