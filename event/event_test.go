package event

import (
	"strings"
	"testing"
)

func TestRenderRegistryEvent(t *testing.T) {
	line, err := Render(Registry(TagAddMunicipality, AddMunicipality{MunicipalityID: "springfield"}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := `EVENT_JSON:{"version":"1.0.0","event":"add_municipality","data":[{"municipality_id":"springfield"}]}`
	if line != want {
		t.Fatalf("Render mismatch:\n got %s\nwant %s", line, want)
	}
}

func TestRenderOmitsEmptyMemo(t *testing.T) {
	memo := "bond issue 12"
	withMemo, err := Render(Registry(TagAddProject, AddProject{
		MunicipalityID: "springfield",
		ProjectID:      "sewer-2026",
		Memo:           &memo,
	}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(withMemo, `"memo":"bond issue 12"`) {
		t.Fatalf("memo missing from %s", withMemo)
	}

	without, err := Render(Registry(TagAddProject, AddProject{
		MunicipalityID: "springfield",
		ProjectID:      "sewer-2026",
	}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(without, "memo") {
		t.Fatalf("nil memo should be omitted: %s", without)
	}
}

func TestLinkAccountKeepsNullMemo(t *testing.T) {
	line, err := Render(Registry(TagLinkAccount, LinkAccount{UserID: "u-1", AccountID: "alice.near"}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(line, `"memo":null`) {
		t.Fatalf("link_account memo must serialize as null: %s", line)
	}
}

func TestRenderNFTEventCarriesStandard(t *testing.T) {
	line, err := Render(NFT(TagNftTransfer, NftTransfer{
		OldOwnerID: "custody.demo",
		NewOwnerID: "alice.near",
		TokenIDs:   []string{"bond-1"},
	}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(line, `EVENT_JSON:{"standard":"nep171","version":"nft-1.0.0",`) {
		t.Fatalf("nft event missing standard prefix: %s", line)
	}
	if strings.Contains(line, "authorized_id") {
		t.Fatalf("authorized_id should be absent for owner transfers: %s", line)
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := Registry(TagAddUser, AddUser{UserID: "u-9", MunicipalityID: "springfield"})
	line, err := Render(orig)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.Event != TagAddUser || got.Version != Version {
		t.Fatalf("Parse mismatch: %+v", got)
	}
	data, ok := got.Data.([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("Parse data shape: %#v", got.Data)
	}
}

func TestParseRejectsUnmarkedLine(t *testing.T) {
	if _, err := Parse(`{"version":"1.0.0"}`); err == nil {
		t.Fatalf("Parse accepted a line without the marker")
	}
}

func TestRenderRequiresTag(t *testing.T) {
	if _, err := Render(Log{Version: Version}); err == nil {
		t.Fatalf("Render accepted an empty event tag")
	}
}
