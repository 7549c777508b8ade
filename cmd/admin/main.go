// =================================
// File: cmd/admin/main.go
// =================================
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/authority"
	"github.com/memeflow/copytrade/internal/chain"
	"github.com/memeflow/copytrade/internal/config"
	"github.com/memeflow/copytrade/internal/logger"
	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/wallet"
)

const usage = `Usage: admin <command> [flags]

Commands:
  init           create the platform config (signed by --key)
  update-config  change admin, swap executor or swap program (signed by the admin --key)
  delegate       approve the swap executor on a token account (signed by the user --key)
  revoke         revoke the executor's approval (signed by the user --key)
  show           print the platform config and, with --user, a delegation record
  pda            print derived addresses
`

var errUsage = errors.New("invalid usage")

type globalFlags struct {
	configPath string
	rpcURL     string
	programID  string
	keySource  string
	verbose    bool
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&g.configPath, "config", "c", "", "Path to config file")
	fs.StringVar(&g.rpcURL, "rpc", "", "RPC endpoint (overrides config)")
	fs.StringVar(&g.programID, "program", "", "Authority program id (overrides config)")
	fs.StringVarP(&g.keySource, "key", "k", "", "Signer keypair file or base58 private key")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "Debug logging")
}

type env struct {
	cfg    *config.Config
	log    *zap.Logger
	client *authority.Client
	out    io.Writer
}

func (g *globalFlags) setup(out io.Writer) (*env, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.rpcURL != "" {
		cfg.RPCURL = g.rpcURL
	}
	if g.programID != "" {
		if _, err := solana.PublicKeyFromBase58(g.programID); err != nil {
			return nil, fmt.Errorf("invalid --program: %w", err)
		}
		cfg.ProgramID = g.programID
	}

	logCfg := cfg.Log
	logCfg.File = ""
	logCfg.Level = "warn"
	if g.verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	client := authority.NewClient(cfg.Program(), chain.NewClient(cfg.RPCURL, log), log)
	return &env{cfg: cfg, log: log, client: client, out: out}, nil
}

func (g *globalFlags) signer() (*wallet.Wallet, error) {
	if g.keySource == "" {
		return nil, fmt.Errorf("%w: --key is required", errUsage)
	}
	return wallet.Load(g.keySource)
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "init":
		return cmdInit(ctx, args[1:], out)
	case "update-config":
		return cmdUpdateConfig(ctx, args[1:], out)
	case "delegate":
		return cmdDelegate(ctx, args[1:], out)
	case "revoke":
		return cmdRevoke(ctx, args[1:], out)
	case "show":
		return cmdShow(ctx, args[1:], out)
	case "pda":
		return cmdPDA(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func parseKey(name, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: --%s: %v", errUsage, name, err)
	}
	return key, nil
}

func optionalKey(name, value string) (*solana.PublicKey, error) {
	if value == "" {
		return nil, nil
	}
	key, err := parseKey(name, value)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func cmdInit(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	g.register(fs)
	admin := fs.String("admin", "", "Admin authority (defaults to the signer)")
	executor := fs.String("executor", "", "Swap executor authority")
	swapProgram := fs.String("swap-program", "", "External swap program id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	payer, err := g.signer()
	if err != nil {
		return err
	}
	adminKey := payer.PublicKey
	if *admin != "" {
		if adminKey, err = parseKey("admin", *admin); err != nil {
			return err
		}
	}
	executorKey, err := parseKey("executor", *executor)
	if err != nil {
		return err
	}
	programKey, err := parseKey("swap-program", *swapProgram)
	if err != nil {
		return err
	}

	e, err := g.setup(out)
	if err != nil {
		return err
	}
	defer logger.Sync(e.log)

	sig, err := e.client.Initialize(ctx, payer, adminKey, executorKey, programKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "initialized: %s\n", sig)
	return nil
}

func cmdUpdateConfig(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := pflag.NewFlagSet("update-config", pflag.ContinueOnError)
	g.register(fs)
	admin := fs.String("new-admin", "", "New admin authority")
	executor := fs.String("new-executor", "", "New swap executor authority")
	swapProgram := fs.String("new-swap-program", "", "New external swap program id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var params program.UpdateConfigParams
	var err error
	if params.NewAdmin, err = optionalKey("new-admin", *admin); err != nil {
		return err
	}
	if params.NewSwapExecutor, err = optionalKey("new-executor", *executor); err != nil {
		return err
	}
	if params.NewExternalSwapProgramID, err = optionalKey("new-swap-program", *swapProgram); err != nil {
		return err
	}
	if params.NewAdmin == nil && params.NewSwapExecutor == nil && params.NewExternalSwapProgramID == nil {
		return fmt.Errorf("%w: nothing to update", errUsage)
	}

	signer, err := g.signer()
	if err != nil {
		return err
	}
	e, err := g.setup(out)
	if err != nil {
		return err
	}
	defer logger.Sync(e.log)

	sig, err := e.client.UpdateConfig(ctx, signer, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "updated: %s\n", sig)
	return nil
}

// tokenAccount resolves --token-account, falling back to the user's
// associated token account for --mint.
func tokenAccount(user *wallet.Wallet, account, mint string) (solana.PublicKey, error) {
	switch {
	case account != "":
		return parseKey("token-account", account)
	case mint != "":
		mintKey, err := parseKey("mint", mint)
		if err != nil {
			return solana.PublicKey{}, err
		}
		return user.TokenAccount(mintKey)
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: --token-account or --mint is required", errUsage)
	}
}

func cmdDelegate(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := pflag.NewFlagSet("delegate", pflag.ContinueOnError)
	g.register(fs)
	account := fs.String("token-account", "", "Token account to approve")
	mint := fs.String("mint", "", "Approve the associated token account of this mint")
	executor := fs.String("executor", "", "Swap executor (defaults to the platform config)")
	amount := fs.Uint64("amount", 0, "Approval amount in base units")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *amount == 0 {
		return fmt.Errorf("%w: --amount must be positive", errUsage)
	}

	user, err := g.signer()
	if err != nil {
		return err
	}
	tokenKey, err := tokenAccount(user, *account, *mint)
	if err != nil {
		return err
	}
	e, err := g.setup(out)
	if err != nil {
		return err
	}
	defer logger.Sync(e.log)

	var executorKey solana.PublicKey
	if *executor != "" {
		if executorKey, err = parseKey("executor", *executor); err != nil {
			return err
		}
	} else {
		cfg, err := e.client.PlatformConfig(ctx)
		if err != nil {
			return fmt.Errorf("platform config: %w", err)
		}
		executorKey = cfg.SwapExecutorAuthority
	}

	sig, err := e.client.DelegateAuthority(ctx, user, tokenKey, executorKey, *amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "delegated %d on %s to %s: %s\n", *amount, tokenKey, executorKey, sig)
	return nil
}

func cmdRevoke(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
	g.register(fs)
	account := fs.String("token-account", "", "Token account to revoke")
	mint := fs.String("mint", "", "Revoke the associated token account of this mint")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	user, err := g.signer()
	if err != nil {
		return err
	}
	tokenKey, err := tokenAccount(user, *account, *mint)
	if err != nil {
		return err
	}
	e, err := g.setup(out)
	if err != nil {
		return err
	}
	defer logger.Sync(e.log)

	sig, err := e.client.RevokeAuthority(ctx, user, tokenKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked %s: %s\n", tokenKey, sig)
	return nil
}

func cmdShow(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	g.register(fs)
	user := fs.String("user", "", "Show the delegation record of this user")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	e, err := g.setup(out)
	if err != nil {
		return err
	}
	defer logger.Sync(e.log)

	cfg, err := e.client.PlatformConfig(ctx)
	if err != nil {
		return fmt.Errorf("platform config: %w", err)
	}
	fmt.Fprintf(out, "program:        %s\n", e.client.ProgramID())
	fmt.Fprintf(out, "admin:          %s\n", cfg.AdminAuthority)
	fmt.Fprintf(out, "swap executor:  %s\n", cfg.SwapExecutorAuthority)
	fmt.Fprintf(out, "swap program:   %s\n", cfg.ExternalSwapProgramID)

	if *user == "" {
		return nil
	}
	userKey, err := parseKey("user", *user)
	if err != nil {
		return err
	}
	rec, err := e.client.DelegatedAuthority(ctx, userKey)
	if errors.Is(err, program.ErrNotFound) {
		fmt.Fprintf(out, "delegation:     none for %s\n", logger.ShortenAddress(userKey.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delegated authority: %w", err)
	}
	fmt.Fprintf(out, "delegation:     user=%s active=%t executor=%s\n",
		logger.ShortenAddress(rec.User.String()), rec.IsActive, logger.ShortenAddress(rec.AllowedSwapAuthority.String()))
	return nil
}

func cmdPDA(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("pda", pflag.ContinueOnError)
	programFlag := fs.String("program", program.DefaultProgramID.String(), "Authority program id")
	user := fs.String("user", "", "Also derive the delegation record of this user")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	programID, err := parseKey("program", *programFlag)
	if err != nil {
		return err
	}

	cfgAddr, bump, err := program.DerivePlatformConfigAddress(programID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "platform_config: %s (bump %d)\n", cfgAddr, bump)

	if *user == "" {
		return nil
	}
	userKey, err := parseKey("user", *user)
	if err != nil {
		return err
	}
	recAddr, bump, err := program.DeriveDelegatedAuthorityAddress(programID, userKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "delegate:        %s (bump %d)\n", recAddr, bump)
	return nil
}
