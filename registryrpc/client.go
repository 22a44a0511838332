package registryrpc

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/keys"
)

// Signer holds the credentials a client signs calls with. The nonce counter
// advances on every signed call.
type Signer struct {
	Account    string
	PrivateKey ed25519.PrivateKey

	nonce atomic.Uint64
}

func NewSigner(account string, seed []byte) *Signer {
	return &Signer{Account: account, PrivateKey: ed25519.NewKeyFromSeed(seed)}
}

// IssuerKey returns the issuer-key string for the signer's public key.
func (s *Signer) IssuerKey() (string, error) {
	return keys.IssuerKeyFromPublicKey(s.PrivateKey.Public().(ed25519.PublicKey))
}

// CallOutcome is what a remote call returns: the entry call's value, the
// committed log lines, and the failure message of any downstream receipt.
type CallOutcome struct {
	Value    []byte
	Logs     []string
	Receipts int
	Failure  string
}

// Client invokes the Registry gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client RegistryClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration
}

func Dial(target string, opts DialOptions) (*Client, error) {
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	cc, err := grpc.DialContext(ctx, target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewRegistryClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Call executes a signed state-changing method. deposit is a decimal yocto
// amount; empty means zero.
func (c *Client) Call(ctx context.Context, signer *Signer, contract, method string, args []byte, deposit string) (*CallOutcome, error) {
	issuerKey, err := signer.IssuerKey()
	if err != nil {
		return nil, err
	}
	nonce := signer.nonce.Add(1)
	sig := keys.SignEd25519SHA256(SigningPayload(signer.Account, method, nonce), signer.PrivateKey)

	ctx = metadata.AppendToOutgoingContext(ctx,
		mdAccount, signer.Account,
		mdIssuerKey, issuerKey,
		mdNonce, strconv.FormatUint(nonce, 10),
		mdSignature, sig,
	)

	fields := map[string]any{
		"contract": contract,
		"method":   method,
		"deposit":  deposit,
	}
	setArgs(fields, args)
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &CallOutcome{
		Value:    []byte(stringField(reply, "value")),
		Receipts: int(reply.GetFields()["receipts"].GetNumberValue()),
		Failure:  stringField(reply, "failure"),
	}
	for _, v := range reply.GetFields()["logs"].GetListValue().GetValues() {
		out.Logs = append(out.Logs, v.GetStringValue())
	}
	return out, nil
}

// View executes a read-only method.
func (c *Client) View(ctx context.Context, contract, method string, args []byte) ([]byte, error) {
	fields := map[string]any{
		"contract": contract,
		"method":   method,
	}
	setArgs(fields, args)
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.View(ctx, req)
	if err != nil {
		return nil, err
	}
	return []byte(stringField(reply, "value")), nil
}

// setArgs places the call payload. Struct string values must be valid UTF-8,
// so arbitrary bytes (raw bytecode, most of all) travel base64-encoded in a
// separate field.
func setArgs(fields map[string]any, args []byte) {
	if utf8.Valid(args) {
		fields["args"] = string(args)
		return
	}
	fields["payload"] = base64.StdEncoding.EncodeToString(args)
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
