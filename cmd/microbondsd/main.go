package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/chain"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/custody"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/factory"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/registryrpc"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/state"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/casconfig"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/casregistry"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/token"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/userregistry"

	_ "github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/grpccas"
	_ "github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/ipfs"
	_ "github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/localfs"
	_ "github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/memcas"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// applySeeds creates or tops up accounts from id=balance specs. Topping up
// keeps seeding effective on restarts against persisted state, where the
// accounts already exist.
func applySeeds(rt *chain.Runtime, seeds []string) error {
	for _, s := range seeds {
		id, bal, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid -seed-account %q (expected id=balance)", s)
		}
		amount, err := uint256.FromDecimal(bal)
		if err != nil {
			return fmt.Errorf("invalid -seed-account balance %q: %w", bal, err)
		}
		if rt.AccountExists(id) {
			err = rt.Deposit(id, amount)
		} else {
			err = rt.CreateAccount(id, amount)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	fs := flag.NewFlagSet("microbondsd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7700", "listen address")
	stateDir := fs.String("state-dir", "", "chain state directory (empty keeps state in memory)")
	backend := fs.String("code-backend", "mem", "bytecode CAS backend name")
	codeConfig := fs.String("code-config", "", "JSON bytecode store config (overrides -code-backend; supports replicated backends)")
	listBackends := fs.Bool("list-backends", false, "List supported bytecode backends and exit")

	factoryAccount := fs.String("factory-account", "factory.microbonds", "account the token factory runs on")
	custodyAccount := fs.String("custody-account", "custody.microbonds", "account the custody registry runs on")
	usersAccount := fs.String("users-account", "users.microbonds", "account the user registry runs on")

	var seedAccounts stringList
	var callerKeys stringList
	fs.Var(&seedAccounts, "seed-account", "Seed account as id=balance (repeatable)")
	fs.Var(&callerKeys, "caller-key", "Authorized caller as account=issuer-key (repeatable)")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	var cas storage.CAS
	var closeFn func() error
	var err error
	if *codeConfig != "" {
		cfg, cerr := casconfig.LoadFile(*codeConfig)
		if cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
			os.Exit(2)
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon, "")
	} else {
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageDaemon)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	var kv state.KV = state.NewMemKV()
	if *stateDir != "" {
		kv, err = state.NewDirKV(*stateDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	rt := chain.New(kv, cas)
	rt.SetEventSink(func(line string) { fmt.Fprintln(os.Stdout, line) })
	rt.SetCodeFactory(func(_ cid.Cid, accountID string) (chain.Handler, error) {
		return token.New(accountID), nil
	})

	// Seed before binding the contract handlers: registration creates any
	// missing contract account at balance zero, and the contracts (custody
	// most of all) need funds to attach deposits to their promises.
	if err := applySeeds(rt, seedAccounts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := rt.RegisterContract(*factoryAccount, factory.Contract{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := rt.RegisterContract(*custodyAccount, custody.Contract{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := rt.RegisterContract(*usersAccount, userregistry.Contract{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	keyDir := registryrpc.StaticKeys{}
	for _, s := range callerKeys {
		account, issuerKey, ok := strings.Cut(s, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "invalid -caller-key %q (expected account=issuer-key)\n", s)
			os.Exit(2)
		}
		keyDir[account] = issuerKey
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	registryrpc.RegisterRegistryServer(s, registryrpc.NewServer(rt, keyDir))

	fmt.Fprintf(os.Stderr, "microbondsd listening on %s (code-backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
