package registryrpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/factory"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/keys"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/memcas"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/userregistry"
)

const (
	testContract = "users.demo"
	testFactory  = "factory.demo"
	testOwner    = "gov.demo"
)

func testSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	return seed
}

func startServer(t *testing.T) (*Client, *Signer) {
	t.Helper()

	rt := chain.New(state.NewMemKV(), memcas.New())
	if err := rt.RegisterContract(testContract, userregistry.Contract{}); err != nil {
		t.Fatalf("RegisterContract: %v", err)
	}
	if err := rt.RegisterContract(testFactory, factory.Contract{}); err != nil {
		t.Fatalf("RegisterContract: %v", err)
	}
	if err := rt.CreateAccount(testOwner, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	for _, contract := range []string{testContract, testFactory} {
		if _, err := rt.Call(chain.CallRequest{
			Contract: contract,
			Method:   "new",
			Args:     []byte(`{"owner_id":"` + testOwner + `"}`),
			Signer:   testOwner,
		}); err != nil {
			t.Fatalf("new %s: %v", contract, err)
		}
	}

	signer := NewSigner(testOwner, testSeed())
	issuerKey, err := signer.IssuerKey()
	if err != nil {
		t.Fatalf("IssuerKey: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterRegistryServer(srv, NewServer(rt, StaticKeys{testOwner: issuerKey}))
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	return &Client{cc: cc, client: NewRegistryClient(cc), Timeout: 2 * time.Second}, signer
}

func TestCallAndViewRoundTrip(t *testing.T) {
	client, signer := startServer(t)
	ctx := context.Background()

	out, err := client.Call(ctx, signer, testContract, "add_user_to_municipality",
		[]byte(`{"municipality_id":"springfield","user_id":"user-1"}`), "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Receipts != 1 || out.Failure != "" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Logs) != 1 {
		t.Fatalf("logs = %v", out.Logs)
	}

	v, err := client.View(ctx, testContract, "is_user_in_municipality",
		[]byte(`{"municipality_id":"springfield","user_id":"user-1"}`))
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if string(v) != "true" {
		t.Fatalf("view = %s", v)
	}
}

func TestCallCarriesRawBytecode(t *testing.T) {
	client, signer := startServer(t)
	ctx := context.Background()

	// A WASM-style payload with bytes no UTF-8 string can hold.
	code := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0xff, 0xfe, 0x80}

	out, err := client.Call(ctx, signer, testFactory, "add_token_version", code, "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Failure != "" {
		t.Fatalf("failure = %q", out.Failure)
	}
	if string(out.Value) != "0" {
		t.Fatalf("version = %s, want 0", out.Value)
	}

	v, err := client.View(ctx, testFactory, "get_code_for_token_version", []byte(`{"token_version":0}`))
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	var got []byte
	if err := json.Unmarshal(v, &got); err != nil {
		t.Fatalf("code view JSON: %v", err)
	}
	if !bytes.Equal(got, code) {
		t.Fatalf("stored code mismatch: %x != %x", got, code)
	}
}

func TestCallFaultsMapToStatusCodes(t *testing.T) {
	client, signer := startServer(t)
	ctx := context.Background()

	if _, err := client.Call(ctx, signer, testContract, "add_user_to_municipality",
		[]byte(`{"municipality_id":"springfield","user_id":"user-1"}`), ""); err != nil {
		t.Fatalf("Call: %v", err)
	}
	_, err := client.Call(ctx, signer, testContract, "add_user_to_municipality",
		[]byte(`{"municipality_id":"springfield","user_id":"user-1"}`), "")
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("code = %v, want AlreadyExists", status.Code(err))
	}

	_, err = client.Call(ctx, signer, testContract, "no_such_method", nil, "")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", status.Code(err))
	}
}

func TestCallRejectsUnknownSigner(t *testing.T) {
	client, _ := startServer(t)

	mallory := NewSigner("mallory.demo", testSeed())
	_, err := client.Call(context.Background(), mallory, testContract, "add_user_to_municipality",
		[]byte(`{"municipality_id":"springfield","user_id":"user-1"}`), "")
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestCallRejectsWrongKey(t *testing.T) {
	client, _ := startServer(t)

	seed := testSeed()
	seed[0] ^= 0xff
	imposter := NewSigner(testOwner, seed)
	_, err := client.Call(context.Background(), imposter, testContract, "add_user_to_municipality",
		[]byte(`{"municipality_id":"springfield","user_id":"user-1"}`), "")
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestCallRejectsReplayedNonce(t *testing.T) {
	client, signer := startServer(t)
	ctx := context.Background()

	issuerKey, err := signer.IssuerKey()
	if err != nil {
		t.Fatalf("IssuerKey: %v", err)
	}

	// A fixed nonce succeeds once and is rejected on replay.
	invoke := func() error {
		sig := keys.SignEd25519SHA256(SigningPayload(testOwner, "add_user_to_municipality", 7), signer.PrivateKey)
		mctx := metadata.AppendToOutgoingContext(ctx,
			mdAccount, testOwner,
			mdIssuerKey, issuerKey,
			mdNonce, strconv.Itoa(7),
			mdSignature, sig,
		)
		req, err := structpb.NewStruct(map[string]any{
			"contract": testContract,
			"method":   "add_user_to_municipality",
			"args":     `{"municipality_id":"springfield","user_id":"user-` + strconv.Itoa(int(time.Now().UnixNano())) + `"}`,
		})
		if err != nil {
			t.Fatalf("NewStruct: %v", err)
		}
		_, err = client.client.Call(mctx, req)
		return err
	}

	if err := invoke(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := invoke(); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestViewIsUnauthenticated(t *testing.T) {
	client, _ := startServer(t)
	v, err := client.View(context.Background(), testContract, "owner", nil)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if string(v) != `"`+testOwner+`"` {
		t.Fatalf("owner = %s", v)
	}
}
