package registryrpc

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"sync"

	"github.com/holiman/uint256"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/fault"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/keys"
)

// Server exposes a chain.Runtime over the Registry gRPC service.
//
// Calls authenticate through signed metadata headers and execute under the
// account named there; views pass through unauthenticated. The runtime is
// single-threaded, so the server serializes all execution.
type Server struct {
	UnimplementedRegistryServer

	Runtime *chain.Runtime
	Keys    KeyDirectory

	mu     sync.Mutex
	nonces map[string]uint64
}

func NewServer(rt *chain.Runtime, keyDir KeyDirectory) *Server {
	return &Server{Runtime: rt, Keys: keyDir, nonces: make(map[string]uint64)}
}

func (s *Server) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.Runtime == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing runtime")
	}
	contract := stringField(in, "contract")
	method := stringField(in, "method")
	if contract == "" || method == "" {
		return nil, status.Error(codes.InvalidArgument, "contract and method are required")
	}
	deposit, err := depositField(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	args, err := argsField(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	signer, err := s.authenticate(ctx, method)
	if err != nil {
		return nil, err
	}

	res, err := s.Runtime.Call(chain.CallRequest{
		Contract: contract,
		Method:   method,
		Args:     args,
		Signer:   signer,
		Deposit:  deposit,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return callResponse(res)
}

func (s *Server) View(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx
	if s == nil || s.Runtime == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing runtime")
	}
	contract := stringField(in, "contract")
	method := stringField(in, "method")
	if contract == "" || method == "" {
		return nil, status.Error(codes.InvalidArgument, "contract and method are required")
	}
	args, err := argsField(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.Runtime.View(contract, method, args)
	if err != nil {
		return nil, mapErr(err)
	}
	return structpb.NewStruct(map[string]any{"value": string(v)})
}

// authenticate checks the signed call headers: the account must carry its
// registered issuer key, the nonce must be strictly greater than the last
// accepted one, and the signature must verify over the signing payload.
func (s *Server) authenticate(ctx context.Context, method string) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing call credentials")
	}
	account := mdValue(md, mdAccount)
	issuerKey := mdValue(md, mdIssuerKey)
	nonceStr := mdValue(md, mdNonce)
	sig := mdValue(md, mdSignature)
	if account == "" || issuerKey == "" || nonceStr == "" || sig == "" {
		return "", status.Error(codes.Unauthenticated, "missing call credentials")
	}

	if s.Keys == nil {
		return "", status.Error(codes.Unauthenticated, "no key directory configured")
	}
	registered, ok := s.Keys.IssuerKey(account)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "no issuer key registered for %s", account)
	}
	if registered != issuerKey {
		return "", status.Error(codes.Unauthenticated, "issuer key does not match registered key")
	}

	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "malformed nonce")
	}
	if last, seen := s.nonces[account]; seen && nonce <= last {
		return "", status.Errorf(codes.Unauthenticated, "nonce %d already used", nonce)
	}

	if err := keys.VerifyEd25519SHA256(SigningPayload(account, method, nonce), sig, issuerKey); err != nil {
		return "", status.Error(codes.Unauthenticated, "signature verification failed")
	}
	s.nonces[account] = nonce
	return account, nil
}

func callResponse(res chain.CallResult) (*structpb.Struct, error) {
	logs := make([]any, 0, len(res.Logs()))
	for _, l := range res.Logs() {
		logs = append(logs, l)
	}
	out := map[string]any{
		"value":    string(res.Value()),
		"logs":     logs,
		"receipts": float64(len(res.Outcomes)),
	}
	if failed, ok := res.Failed(); ok {
		out["failure"] = failed.Err.Error()
	}
	return structpb.NewStruct(out)
}

func mdValue(md metadata.MD, key string) string {
	v := md.Get(key)
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func stringField(in *structpb.Struct, key string) string {
	if in == nil {
		return ""
	}
	f, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	return f.GetStringValue()
}

// argsField reads the call payload. UTF-8 payloads arrive as the "args"
// string; arbitrary bytes arrive base64-encoded in "payload".
func argsField(in *structpb.Struct) ([]byte, error) {
	if enc := stringField(in, "payload"); enc != "" {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, errors.New("malformed payload")
		}
		return raw, nil
	}
	if s := stringField(in, "args"); s != "" {
		return []byte(s), nil
	}
	return nil, nil
}

func depositField(in *structpb.Struct) (*uint256.Int, error) {
	raw := stringField(in, "deposit")
	if raw == "" {
		return nil, nil
	}
	d, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, errors.New("malformed deposit")
	}
	return d, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return status.Error(codes.Internal, err.Error())
	}
	code := codes.Internal
	switch fe.Kind {
	case fault.KindUnauthorized:
		code = codes.PermissionDenied
	case fault.KindNotFound:
		code = codes.NotFound
	case fault.KindAlreadyExists:
		code = codes.AlreadyExists
	case fault.KindInsufficientDeposit:
		code = codes.FailedPrecondition
	case fault.KindInvalidArgument:
		code = codes.InvalidArgument
	case fault.KindRemoteFailed:
		code = codes.Aborted
	}
	return status.Error(code, fe.Error())
}
