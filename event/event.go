// Package event renders contract event logs.
//
// Every state-changing operation announces itself with exactly one log line
// of the form
//
//	EVENT_JSON:{"version":"1.0.0","event":"<tag>","data":[{...}]}
//
// Token contract events additionally carry the "standard" field ("nep171").
// Data is always a single-element array; the array form is kept for
// downstream indexers that batch events.
package event

import (
	"encoding/json"
	"strings"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
)

// Marker prefixes every event log line.
const Marker = "EVENT_JSON:"

// Version is the event schema version for registry events.
const Version = "1.0.0"

// NFT standard identifiers carried by token contract events.
const (
	NFTStandard = "nep171"
	NFTVersion  = "nft-1.0.0"
)

// Event tags, as they appear on the wire.
const (
	TagAddMunicipality = "add_municipality"
	TagAddProject      = "add_project"
	TagAddProjectToken = "add_project_token"
	TagAddToken        = "add_token"
	TagSendToken       = "send_token"
	TagLinkAccount     = "link_account"
	TagChangeAccount   = "change_account"
	TagAddUser         = "add_user"
	TagNftMint         = "nft_mint"
	TagNftTransfer     = "nft_transfer"
)

// Log is a single event record. Data holds the payload slice.
type Log struct {
	Standard string `json:"standard,omitempty"`
	Version  string `json:"version"`
	Event    string `json:"event"`
	Data     any    `json:"data"`
}

// Render serializes the log into its single-line wire form.
func Render(l Log) (string, error) {
	if l.Event == "" {
		return "", fault.New(fault.KindInternal, "MB-EVT-001", "event tag is required")
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", fault.Wrap(fault.KindInternal, "MB-EVT-002", "event serialization failed", err)
	}
	return Marker + string(b), nil
}

// Parse splits a rendered line back into a Log. Data payloads come back as
// generic JSON values; callers inspect them by key.
func Parse(line string) (Log, error) {
	if !strings.HasPrefix(line, Marker) {
		return Log{}, fault.New(fault.KindInvalidArgument, "MB-EVT-003", "missing EVENT_JSON marker")
	}
	var l Log
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, Marker)), &l); err != nil {
		return Log{}, fault.Wrap(fault.KindInvalidArgument, "MB-EVT-004", "malformed event payload", err)
	}
	return l, nil
}

// AddMunicipality is the payload for "add_municipality".
type AddMunicipality struct {
	MunicipalityID string  `json:"municipality_id"`
	Memo           *string `json:"memo,omitempty"`
}

// AddProject is the payload for "add_project".
type AddProject struct {
	MunicipalityID string  `json:"municipality_id"`
	ProjectID      string  `json:"project_id"`
	Memo           *string `json:"memo,omitempty"`
}

// AddProjectToken is the payload for "add_project_token", emitted when a
// deployed token account is recorded under its project.
type AddProjectToken struct {
	MunicipalityID string  `json:"municipality_id"`
	ProjectID      string  `json:"project_id"`
	TokenID        string  `json:"token_id"`
	Memo           *string `json:"memo,omitempty"`
}

// AddToken is the payload for "add_token" (custodial ledger insert).
type AddToken struct {
	OwnerID        string  `json:"owner_id"`
	TokenAccountID string  `json:"token_account_id"`
	TokenID        string  `json:"token_id"`
	Memo           *string `json:"memo,omitempty"`
}

// SendToken is the payload for "send_token" (custodial ledger release).
type SendToken struct {
	OwnerID        string  `json:"owner_id"`
	TokenAccountID string  `json:"token_account_id"`
	TokenID        string  `json:"token_id"`
	Memo           *string `json:"memo,omitempty"`
}

// LinkAccount is the payload for "link_account". Memo serializes even when
// null; the upstream consumers expect the key to be present.
type LinkAccount struct {
	UserID    string  `json:"user_id"`
	AccountID string  `json:"account_id"`
	Memo      *string `json:"memo"`
}

// ChangeAccount is the payload for "change_account".
type ChangeAccount struct {
	UserID       string  `json:"user_id"`
	OldAccountID string  `json:"old_account_id"`
	NewAccountID string  `json:"new_account_id"`
	Memo         *string `json:"memo"`
}

// AddUser is the payload for "add_user".
type AddUser struct {
	UserID         string  `json:"user_id"`
	MunicipalityID string  `json:"municipality_id"`
	Memo           *string `json:"memo"`
}

// NftMint is the payload for "nft_mint".
type NftMint struct {
	OwnerID  string   `json:"owner_id"`
	TokenIDs []string `json:"token_ids"`
	Memo     *string  `json:"memo,omitempty"`
}

// NftTransfer is the payload for "nft_transfer". AuthorizedID is set only
// when an approved delegate performed the transfer on the owner's behalf.
type NftTransfer struct {
	AuthorizedID *string  `json:"authorized_id,omitempty"`
	OldOwnerID   string   `json:"old_owner_id"`
	NewOwnerID   string   `json:"new_owner_id"`
	TokenIDs     []string `json:"token_ids"`
	Memo         *string  `json:"memo,omitempty"`
}

// Registry wraps a payload in a registry-versioned Log.
func Registry(tag string, payload any) Log {
	return Log{Version: Version, Event: tag, Data: []any{payload}}
}

// NFT wraps a payload in an NEP-171 Log.
func NFT(tag string, payload any) Log {
	return Log{Standard: NFTStandard, Version: NFTVersion, Event: tag, Data: []any{payload}}
}
