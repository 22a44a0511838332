package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/codeid"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/keys"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/registryrpc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "call":
		return cmdCall(args[1:], out, errOut)
	case "view":
		return cmdView(args[1:], out, errOut)
	case "code-cid":
		return cmdCodeCID(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "microbonds: municipal bond registry CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  microbonds call --contract <id> --method <m> --account <id> (--args <json> | --args-file <file>) [--deposit <yocto>] (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>) [--rpc <addr>]")
	fmt.Fprintln(w, "  microbonds view --contract <id> --method <m> [--args <json>] [--rpc <addr>]")
	fmt.Fprintln(w, "  microbonds code-cid <file>")
	fmt.Fprintln(w, "  microbonds key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  microbonds key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  microbonds key list")
	fmt.Fprintln(w, "  microbonds key export --name <name> [--role <role>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --seed-hex must be 32 bytes (64 hex chars) ed25519 seed")
	fmt.Fprintln(w, "  - keys live under ~/.microbonds/keys/<name> (0600 private key files)")
	fmt.Fprintln(w, "  - --args-file sends the raw file bytes as the call input")
	fmt.Fprintln(w, "    (use it with add_token_version to upload bytecode; code-cid prints the CID it will get)")
	fmt.Fprintln(w, "  - committed EVENT_JSON log lines are echoed to stderr")
}

func cmdCall(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var rpcAddr string
	var contract string
	var method string
	var argsJSON string
	var argsFile string
	var deposit string
	var account string
	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string

	fs.StringVar(&rpcAddr, "rpc", "127.0.0.1:7700", "registry daemon address")
	fs.StringVar(&contract, "contract", "", "Contract account id")
	fs.StringVar(&method, "method", "", "Method name")
	fs.StringVar(&argsJSON, "args", "", "JSON arguments")
	fs.StringVar(&argsFile, "args-file", "", "File whose raw bytes become the call input")
	fs.StringVar(&deposit, "deposit", "", "Attached deposit in yocto (decimal)")
	fs.StringVar(&account, "account", "", "Signer account id")
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'microbonds key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file (hex) created by 'microbonds key init/derive'")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if contract == "" || method == "" {
		fmt.Fprintln(errOut, "missing --contract or --method")
		return 2
	}
	if account == "" {
		fmt.Fprintln(errOut, "missing --account")
		return 2
	}
	if argsJSON != "" && argsFile != "" {
		fmt.Fprintln(errOut, "conflicting flags: --args cannot be combined with --args-file")
		return 2
	}
	if seedHex == "" && signerName == "" && keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return 2
	}

	input := []byte(argsJSON)
	if argsFile != "" {
		b, err := os.ReadFile(argsFile)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(argsFile), err)
			return 1
		}
		input = b
	}

	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	seed, err := ks.LoadSeed(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return 2
	}

	client, err := registryrpc.Dial(rpcAddr, registryrpc.DialOptions{Timeout: 10 * time.Second})
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", rpcAddr, err)
		return 1
	}
	defer client.Close()

	outcome, err := client.Call(context.Background(), registryrpc.NewSigner(account, seed), contract, method, input, deposit)
	if err != nil {
		fmt.Fprintf(errOut, "call: %v\n", err)
		return 1
	}
	for _, line := range outcome.Logs {
		fmt.Fprintln(errOut, line)
	}
	if outcome.Failure != "" {
		fmt.Fprintf(errOut, "receipt failed: %s\n", outcome.Failure)
		return 1
	}
	if len(outcome.Value) > 0 {
		_, _ = fmt.Fprintln(out, string(outcome.Value))
	}
	return 0
}

func cmdView(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var rpcAddr string
	var contract string
	var method string
	var argsJSON string

	fs.StringVar(&rpcAddr, "rpc", "127.0.0.1:7700", "registry daemon address")
	fs.StringVar(&contract, "contract", "", "Contract account id")
	fs.StringVar(&method, "method", "", "Method name")
	fs.StringVar(&argsJSON, "args", "", "JSON arguments")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if contract == "" || method == "" {
		fmt.Fprintln(errOut, "missing --contract or --method")
		return 2
	}

	client, err := registryrpc.Dial(rpcAddr, registryrpc.DialOptions{Timeout: 10 * time.Second})
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", rpcAddr, err)
		return 1
	}
	defer client.Close()

	v, err := client.View(context.Background(), contract, method, []byte(argsJSON))
	if err != nil {
		fmt.Fprintf(errOut, "view: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, string(v))
	return 0
}

func cmdCodeCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("code-cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: microbonds code-cid <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	id, err := codeid.ForCode(b)
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "microbonds key: minimal local key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  microbonds key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  microbonds key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  microbonds key list")
	fmt.Fprintln(w, "  microbonds key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under ~/.microbonds/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = keys.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	issuerKey, rootPath, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", issuerKey)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. issuer, custodian)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerKey, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", issuerKey)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	if role != "" {
		if err := keys.CheckRole(role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerKey, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, issuerKey)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, r := range e.Permissions {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}
