package factory

import (
	"strconv"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/contract"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
)

func (c Contract) viewMunicipalities(env *chain.Env) ([]byte, error) {
	var args contract.Pagination
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	from, limit, err := args.Window()
	if err != nil {
		return nil, err
	}
	out, err := c.municipalities(env.State()).Window(from, limit)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(out)
}

func (c Contract) viewProjects(env *chain.Env) ([]byte, error) {
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
	// An unknown municipality yields an empty page, not an error.
	out, err := c.projects(env.State(), args.MunicipalityID).Window(from, limit)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(out)
}

func (c Contract) viewTokens(env *chain.Env) ([]byte, error) {
	var args struct {
		ProjectID string `json:"project_id"`
		contract.Pagination
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	from, limit, err := args.Window()
	if err != nil {
		return nil, err
	}
	out, err := c.tokens(env.State(), args.ProjectID).Window(from, limit)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(out)
}

func (c Contract) viewVersions(env *chain.Env) ([]byte, error) {
	var args contract.Pagination
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	from, limit, err := args.Window()
	if err != nil {
		return nil, err
	}
	raw, err := c.versions(env.State()).Window(from, limit)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "MB-REG-021", "corrupt version id", err)
		}
		out = append(out, v)
	}
	return contract.MarshalResult(out)
}

func (c Contract) viewVersionCode(env *chain.Env) ([]byte, error) {
	var args struct {
		TokenVersion uint64 `json:"token_version"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	code, err := c.codeForVersion(env, args.TokenVersion)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(code)
}

func (c Contract) viewDeploymentCost(env *chain.Env) ([]byte, error) {
	var args struct {
		TokenVersion uint64 `json:"token_version"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return nil, err
	}
	code, err := c.codeForVersion(env, args.TokenVersion)
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(deploymentCost(code).Dec())
}

func (c Contract) viewOwner(env *chain.Env) ([]byte, error) {
	owner, err := contract.Owner(env.State())
	if err != nil {
		return nil, err
	}
	return contract.MarshalResult(owner)
}
