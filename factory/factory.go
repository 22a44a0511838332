// Package factory implements the bond factory contract: the municipality,
// project and token-account registry, the token bytecode version store, and
// the token deployment orchestrator.
package factory

import (
	"strconv"

	"github.com/holiman/uint256"
	"github.com/ipfs/go-cid"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/codeid"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/contract"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/event"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage"
)

// State key prefixes. Every collection gets its own namespace within the
// contract's storage.
const (
	prefixMunicipalities = "m:"
	prefixProjects       = "p:"
	prefixProjectIndex   = "pi:"
	prefixTokens         = "t:"
	prefixVersions       = "v:"
	prefixVersionCode    = "vc:"
)

// Contract is the factory handler. It is stateless; all persistent state
// lives in the call env's namespace.
type Contract struct{}

var _ chain.Handler = Contract{}

func (c Contract) Call(env *chain.Env, method string) ([]byte, error) {
	switch method {
	case "new":
		return nil, c.initialize(env)
	case "add_new_municipality":
		return nil, c.addMunicipality(env)
	case "add_new_project":
		return nil, c.addProject(env)
	case "add_token_version":
		return c.addTokenVersion(env)
	case "add_new_token_for_project":
		return nil, c.addTokenForProject(env)
	case "resolve_deploy":
		return nil, c.resolveDeploy(env)
	case "view_municipalities":
		return c.viewMunicipalities(env)
	case "view_projects_for_municipality":
		return c.viewProjects(env)
	case "view_tokens_for_project":
		return c.viewTokens(env)
	case "get_token_versions":
		return c.viewVersions(env)
	case "get_code_for_token_version":
		return c.viewVersionCode(env)
	case "get_deployment_cost":
		return c.viewDeploymentCost(env)
	case "owner":
		return c.viewOwner(env)
	}
	return nil, contract.UnknownMethod(method)
}

func (Contract) municipalities(kv state.KV) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixMunicipalities)
}

func (Contract) projects(kv state.KV, municipalityID string) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixProjects+municipalityID+":")
}

// projectIndex holds every project id across all municipalities. Project ids
// key token sets on their own, so they must be unique registry-wide, not just
// within one municipality.
func (Contract) projectIndex(kv state.KV) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixProjectIndex)
}

func (Contract) tokens(kv state.KV, projectID string) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixTokens+projectID+":")
}

func (Contract) versions(kv state.KV) state.UnorderedSet {
	return state.NewUnorderedSet(kv, prefixVersions)
}

func (Contract) versionCode(kv state.KV) state.LookupMap {
	return state.NewLookupMap(kv, prefixVersionCode)
}

func (Contract) initialize(env *chain.Env) error {
	var args struct {
		OwnerID string `json:"owner_id"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	return contract.Initialize(env.State(), args.OwnerID)
}

func (c Contract) addMunicipality(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args struct {
		MunicipalityID string  `json:"municipality_id"`
		Memo           *string `json:"memo"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if args.MunicipalityID == "" {
		return fault.New(fault.KindInvalidArgument, "MB-REG-010", "municipality_id is required")
	}

	ok, err := c.municipalities(env.State()).Insert(args.MunicipalityID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.KindAlreadyExists, "MB-REG-011", "Municipality already exists")
	}
	return env.Emit(event.Registry(event.TagAddMunicipality, event.AddMunicipality{
		MunicipalityID: args.MunicipalityID,
		Memo:           args.Memo,
	}))
}

func (c Contract) addProject(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args struct {
		MunicipalityID string  `json:"municipality_id"`
		ProjectID      string  `json:"project_id"`
		Memo           *string `json:"memo"`
	}
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	if args.MunicipalityID == "" || args.ProjectID == "" {
		return fault.New(fault.KindInvalidArgument, "MB-REG-012", "municipality_id and project_id are required")
	}

	kv := env.State()
	known, err := c.municipalities(kv).Contains(args.MunicipalityID)
	if err != nil {
		return err
	}
	if !known {
		return fault.New(fault.KindNotFound, "MB-REG-013", "Municipality does not exist")
	}
	ok, err := c.projects(kv, args.MunicipalityID).Insert(args.ProjectID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.KindAlreadyExists, "MB-REG-014", "Project already exists in municipality")
	}
	ok, err = c.projectIndex(kv).Insert(args.ProjectID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.KindAlreadyExists, "MB-REG-022", "Project already exists")
	}
	return env.Emit(event.Registry(event.TagAddProject, event.AddProject{
		MunicipalityID: args.MunicipalityID,
		ProjectID:      args.ProjectID,
		Memo:           args.Memo,
	}))
}

// addTokenVersion stores the raw call payload as a new bytecode version.
// Version ids are sequential from zero. The bytes land in the host's
// content-addressable store; the registry keeps only the CID.
func (c Contract) addTokenVersion(env *chain.Env) ([]byte, error) {
	if err := contract.RequireOwner(env); err != nil {
		return nil, err
	}
	if env.Input == nil {
		return nil, fault.New(fault.KindInvalidArgument, "MB-REG-015", "No input given")
	}
	if len(env.Input) == 0 {
		return nil, fault.New(fault.KindInvalidArgument, "MB-REG-016", "No code given")
	}

	id, err := env.CodeStore().Put(env.Input)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-REG-017", "bytecode store write failed", err)
	}

	kv := env.State()
	n, err := c.versions(kv).Len()
	if err != nil {
		return nil, err
	}
	version := strconv.FormatUint(n, 10)
	if _, err := c.versions(kv).Insert(version); err != nil {
		return nil, err
	}
	if err := c.versionCode(kv).Set(version, []byte(id.String())); err != nil {
		return nil, err
	}
	return contract.MarshalResult(n)
}

// TokenMetadata mirrors the NEP-177 contract metadata handed to the token
// contract's initializer.
type TokenMetadata struct {
	Spec          string  `json:"spec"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Icon          *string `json:"icon,omitempty"`
	BaseURI       *string `json:"base_uri,omitempty"`
	Reference     *string `json:"reference,omitempty"`
	ReferenceHash *string `json:"reference_hash,omitempty"`
}

type deployArgs struct {
	MunicipalityID     string  `json:"municipality_id"`
	ProjectID          string  `json:"project_id"`
	TokenVersion       uint64  `json:"token_version"`
	TokenAccountName   string  `json:"token_account_name"`
	TokenName          string  `json:"token_name"`
	TokenSymbol        string  `json:"token_symbol"`
	TokenIcon          *string `json:"token_icon"`
	TokenBaseURI       *string `json:"token_base_uri"`
	TokenReference     *string `json:"token_reference"`
	TokenReferenceHash *string `json:"token_reference_hash"`
	Memo               *string `json:"memo"`
}

type resolveDeployArgs struct {
	MunicipalityID string  `json:"municipality_id"`
	ProjectID      string  `json:"project_id"`
	TokenID        string  `json:"token_id"`
	Memo           *string `json:"memo"`
}

type tokenInitArgs struct {
	OwnerID  string        `json:"owner_id"`
	Metadata TokenMetadata `json:"metadata"`
}

// addTokenForProject validates the deployment preconditions and issues the
// create-account / transfer / deploy / initialize chain, with resolve_deploy
// as the one-shot resolution callback. The registry itself is not touched
// here; the token account is recorded only when the callback observes
// success.
func (c Contract) addTokenForProject(env *chain.Env) error {
	if err := contract.RequireOwner(env); err != nil {
		return err
	}
	var args deployArgs
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	kv := env.State()

	known, err := c.municipalities(kv).Contains(args.MunicipalityID)
	if err != nil {
		return err
	}
	if !known {
		return fault.New(fault.KindNotFound, "MB-DEP-001", "Municipality does not exist")
	}
	// The project itself must be registered, not merely any project under
	// the municipality.
	inProject, err := c.projects(kv, args.MunicipalityID).Contains(args.ProjectID)
	if err != nil {
		return err
	}
	if !inProject {
		return fault.New(fault.KindNotFound, "MB-DEP-002", "Project does not exist")
	}

	code, err := c.codeForVersion(env, args.TokenVersion)
	if err != nil {
		return err
	}

	min := deploymentCost(code)
	if env.AttachedDeposit.Lt(min) {
		return fault.Newf(fault.KindInsufficientDeposit, "MB-DEP-004",
			"Attached deposit of %s is below the required %s", env.AttachedDeposit.Dec(), min.Dec())
	}

	tokenAccount := chain.SubAccountID(args.TokenAccountName, env.CurrentAccountID)
	if !chain.IsValidAccountID(tokenAccount) {
		return fault.Newf(fault.KindInvalidArgument, "MB-DEP-005", "Invalid token account id %q", tokenAccount)
	}

	initArgs, err := contract.MarshalResult(tokenInitArgs{
		OwnerID: env.SignerAccountID,
		Metadata: TokenMetadata{
			Spec:          "nft-" + strconv.FormatUint(args.TokenVersion, 10),
			Name:          args.TokenName,
			Symbol:        args.TokenSymbol,
			Icon:          args.TokenIcon,
			BaseURI:       args.TokenBaseURI,
			Reference:     args.TokenReference,
			ReferenceHash: args.TokenReferenceHash,
		},
	})
	if err != nil {
		return err
	}
	resolveArgs, err := contract.MarshalResult(resolveDeployArgs{
		MunicipalityID: args.MunicipalityID,
		ProjectID:      args.ProjectID,
		TokenID:        tokenAccount,
		Memo:           args.Memo,
	})
	if err != nil {
		return err
	}

	env.NewPromise(tokenAccount).
		CreateAccount().
		Transfer(env.AttachedDeposit).
		DeployContract(code).
		FunctionCall("new", initArgs, nil).
		Then("resolve_deploy", resolveArgs)
	return nil
}

// resolveDeploy records the deployed token account. It commits the registry
// entry only when the deployment chain succeeded; a failed chain aborts here
// and leaves the registry untouched, with no automatic retry.
func (c Contract) resolveDeploy(env *chain.Env) error {
	if err := env.AssertPrivate(); err != nil {
		return err
	}
	var args resolveDeployArgs
	if err := contract.ParseArgs(env.Input, &args); err != nil {
		return err
	}
	res, ok := env.Result()
	if !ok {
		return fault.New(fault.KindInternal, "MB-DEP-006", "resolve_deploy called outside a resolution")
	}
	if !res.Successful {
		return fault.Newf(fault.KindRemoteFailed, "MB-DEP-007", "Failed to deploy token contract")
	}

	ok, err := c.tokens(env.State(), args.ProjectID).Insert(args.TokenID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.KindAlreadyExists, "MB-DEP-008", "Token already added for project")
	}
	return env.Emit(event.Registry(event.TagAddProjectToken, event.AddProjectToken{
		MunicipalityID: args.MunicipalityID,
		ProjectID:      args.ProjectID,
		TokenID:        args.TokenID,
		Memo:           args.Memo,
	}))
}

func (c Contract) codeForVersion(env *chain.Env, version uint64) ([]byte, error) {
	key := strconv.FormatUint(version, 10)
	raw, err := c.versionCode(env.State()).Get(key)
	if state.IsNotFound(err) {
		return nil, fault.New(fault.KindNotFound, "MB-DEP-003", "Token version does not exist")
	}
	if err != nil {
		return nil, err
	}
	id, err := cid.Decode(string(raw))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "MB-REG-018", "corrupt version code id", err)
	}
	code, err := env.CodeStore().Get(id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fault.New(fault.KindNotFound, "MB-DEP-003", "Token version does not exist")
		}
		return nil, fault.Wrap(fault.KindInternal, "MB-REG-019", "bytecode store read failed", err)
	}
	// A store returning bytes for a different id is a fatal host fault.
	if codeid.String(code) != id.String() {
		return nil, fault.New(fault.KindInternal, "MB-REG-020", "bytecode digest mismatch")
	}
	return code, nil
}

func deploymentCost(code []byte) *uint256.Int {
	return new(uint256.Int).Mul(chain.StoragePricePerByte, uint256.NewInt(uint64(len(code))))
}
