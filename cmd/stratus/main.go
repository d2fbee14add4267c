// X1-Stratus: Token Issuance Node
//
// This is the main entry point for X1-Stratus, a self-contained token
// issuance engine. It executes create_token, mint_token, and
// transfer_tokens instructions against a local accounts database,
// delegating state mutation to the built-in system, token, and
// associated token programs.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fortiblox/x1-stratus/pkg/accounts"
	"github.com/fortiblox/x1-stratus/pkg/crypto"
	"github.com/fortiblox/x1-stratus/pkg/engine"
	"github.com/fortiblox/x1-stratus/pkg/programs/issuance"
	"github.com/fortiblox/x1-stratus/pkg/programs/metadata"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/snapshot"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildTime = "unknown"
)

// Configuration flags
var (
	configFile        = flag.String("config", "/root/.config/x1-stratus/config.json", "Path to JSON configuration file")
	dataDir           = flag.String("data-dir", "", "Data directory for the accounts database")
	dbBackend         = flag.String("db", "", "Accounts database backend: badger, memory")
	issuanceProgramID = flag.String("issuance-program-id", "", "Deployed issuance program ID (base58)")
	metadataProgramID = flag.String("metadata-program-id", "", "Metadata program ID (base58, empty disables metadata)")
	computeLimit      = flag.Uint64("compute-limit", 0, "Per-transaction compute unit limit")
	skipSigVerify     = flag.Bool("skip-sig-verify", false, "Skip signature verification (unsafe)")
	restoreSnapshot   = flag.String("restore-snapshot", "", "Restore accounts state from a snapshot archive before starting")
	writeSnapshot     = flag.String("write-snapshot", "", "Write a snapshot archive after running and exit")
	runDemo           = flag.Bool("demo", false, "Run a create/mint/transfer demonstration flow")
	showVersion       = flag.Bool("version", false, "Print version and exit")
)

// Config represents the JSON configuration file structure.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Programs  ProgramsConfig  `json:"programs"`
	Execution ExecutionConfig `json:"execution"`
	Genesis   []GenesisEntry  `json:"genesis"`
}

// GeneralConfig holds general application settings.
type GeneralConfig struct {
	DataDir string `json:"data_dir"`
	DB      string `json:"db"`
}

// ProgramsConfig holds the deployed program IDs. The issuance program's
// address is deployment configuration; the metadata program ID selects
// whether create_token stores metadata or only logs name and symbol.
type ProgramsConfig struct {
	IssuanceProgramID string `json:"issuance_program_id"`
	MetadataProgramID string `json:"metadata_program_id"`
}

// ExecutionConfig holds transaction execution settings.
type ExecutionConfig struct {
	ComputeUnitsLimit uint64 `json:"compute_units_limit"`
	SkipSigVerify     bool   `json:"skip_sig_verify"`
}

// GenesisEntry funds an account at startup if it does not exist yet.
type GenesisEntry struct {
	Pubkey   string `json:"pubkey"`
	Lamports uint64 `json:"lamports"`
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DataDir: "/mnt/x1-stratus",
			DB:      "badger",
		},
		Programs: ProgramsConfig{
			// A locally generated address; real deployments override this.
			IssuanceProgramID: types.SHA256([]byte("x1-stratus-issuance")).String(),
		},
		Execution: ExecutionConfig{
			ComputeUnitsLimit: engine.DefaultComputeUnits,
		},
	}
}

// loadConfig loads configuration from the specified JSON file.
// If the file doesn't exist, it returns the default configuration.
func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults", configPath)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	log.Printf("Loaded configuration from %s", configPath)
	return cfg, nil
}

// applyConfigWithCLIOverrides lets explicitly set CLI flags override the
// config file values.
func applyConfigWithCLIOverrides(cfg Config) Config {
	flagSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	if flagSet["data-dir"] {
		cfg.General.DataDir = *dataDir
	}
	if flagSet["db"] {
		cfg.General.DB = *dbBackend
	}
	if flagSet["issuance-program-id"] {
		cfg.Programs.IssuanceProgramID = *issuanceProgramID
	}
	if flagSet["metadata-program-id"] {
		cfg.Programs.MetadataProgramID = *metadataProgramID
	}
	if flagSet["compute-limit"] {
		cfg.Execution.ComputeUnitsLimit = *computeLimit
	}
	if flagSet["skip-sig-verify"] {
		cfg.Execution.SkipSigVerify = *skipSigVerify
	}
	return cfg
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("x1-stratus %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	cfg = applyConfigWithCLIOverrides(cfg)

	if err := run(cfg); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
}

func run(cfg Config) error {
	db, err := openDatabase(cfg.General)
	if err != nil {
		return err
	}
	defer db.Close()

	if *restoreSnapshot != "" {
		manifest, err := snapshot.Load(*restoreSnapshot, db)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		log.Printf("Restored %d accounts from %s (state root %s)",
			manifest.AccountsCount, *restoreSnapshot, manifest.StateRoot)
	}

	if err := applyGenesis(db, cfg.Genesis); err != nil {
		return err
	}

	issuanceID, err := types.PubkeyFromBase58(cfg.Programs.IssuanceProgramID)
	if err != nil {
		return fmt.Errorf("invalid issuance program ID: %w", err)
	}

	registry := engine.NewProgramRegistry()
	engine.RegisterBuiltins(registry)

	if cfg.Programs.MetadataProgramID != "" {
		metadataID, err := types.PubkeyFromBase58(cfg.Programs.MetadataProgramID)
		if err != nil {
			return fmt.Errorf("invalid metadata program ID: %w", err)
		}
		registry.RegisterWithName(metadataID, "Metadata Program", metadata.New(metadataID))
		registry.RegisterWithName(issuanceID, "Issuance Program", issuance.NewWithMetadata(issuanceID, metadataID))
		log.Printf("Issuance program %s with metadata program %s", issuanceID, metadataID)
	} else {
		registry.RegisterWithName(issuanceID, "Issuance Program", issuance.New(issuanceID))
		log.Printf("Issuance program %s (metadata disabled)", issuanceID)
	}

	executor := engine.NewExecutor(db, registry)
	executor.SetComputeUnitsLimit(types.ComputeUnits(cfg.Execution.ComputeUnitsLimit))
	executor.SetSkipSignatureVerification(cfg.Execution.SkipSigVerify)

	if *runDemo {
		if err := demo(executor, db, issuanceID); err != nil {
			return fmt.Errorf("demo flow: %w", err)
		}
	}

	if *writeSnapshot != "" {
		manifest, err := snapshot.Write(db, *writeSnapshot)
		if err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		log.Printf("Wrote %d accounts to %s (state root %s)",
			manifest.AccountsCount, *writeSnapshot, manifest.StateRoot)
	}

	root, err := accounts.ComputeStateRoot(db)
	if err != nil {
		return fmt.Errorf("compute state root: %w", err)
	}
	log.Printf("Accounts: %d, state root: %s", db.GetAccountsCount(), root)
	return nil
}

func openDatabase(cfg GeneralConfig) (accounts.AccountsDB, error) {
	switch cfg.DB {
	case "memory":
		log.Printf("Using in-memory accounts database")
		return accounts.NewMemoryDB(), nil
	case "badger", "":
		path := filepath.Join(cfg.DataDir, "accounts")
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		log.Printf("Using badger accounts database at %s", path)
		return accounts.NewBadgerDB(path)
	default:
		return nil, fmt.Errorf("unknown db backend %q", cfg.DB)
	}
}

// applyGenesis funds the configured accounts. Existing accounts are left
// alone so restarts do not re-fund.
func applyGenesis(db accounts.AccountsDB, entries []GenesisEntry) error {
	for _, entry := range entries {
		pubkey, err := types.PubkeyFromBase58(entry.Pubkey)
		if err != nil {
			return fmt.Errorf("genesis account %q: %w", entry.Pubkey, err)
		}
		if db.HasAccount(pubkey) {
			continue
		}
		account := types.NewAccount(types.Lamports(entry.Lamports), types.SystemProgramID)
		if err := db.SetAccount(pubkey, account); err != nil {
			return fmt.Errorf("fund genesis account %s: %w", pubkey, err)
		}
		log.Printf("Genesis: funded %s with %d lamports", pubkey, entry.Lamports)
	}
	return nil
}

// demo runs a full issuance lifecycle with freshly generated keypairs:
// create a token, mint 5 units to a holder, transfer 2 back.
func demo(executor *engine.Executor, db accounts.AccountsDB, issuanceID types.Pubkey) error {
	payer, payerPriv, err := demoKeypair()
	if err != nil {
		return err
	}
	mint, mintPriv, err := demoKeypair()
	if err != nil {
		return err
	}
	holder, holderPriv, err := demoKeypair()
	if err != nil {
		return err
	}

	for _, account := range []types.Pubkey{payer, holder} {
		if err := db.SetAccount(account, types.NewAccount(types.LamportsFromSOL(100), types.SystemProgramID)); err != nil {
			return err
		}
	}

	log.Printf("Demo: payer %s, mint %s, holder %s", payer, mint, holder)

	// create_token
	createArgs := issuance.CreateTokenArgs{Name: "Demo Token", Symbol: "DEMO"}
	err = submit(executor, payer, []*types.Instruction{{
		ProgramID: issuanceID,
		Accounts: []types.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: mint, IsSigner: true, IsWritable: true},
			{Pubkey: types.TokenProgramID},
			{Pubkey: types.SystemProgramID},
			{Pubkey: types.SysvarRentID},
		},
		Data: createArgs.Encode(),
	}}, payerPriv, mintPriv)
	if err != nil {
		return fmt.Errorf("create_token: %w", err)
	}
	log.Printf("Demo: created token %s", mint)

	holderBalance, _, err := runtime.DeriveAssociatedTokenAddress(holder, types.TokenProgramID, mint)
	if err != nil {
		return err
	}
	payerBalance, _, err := runtime.DeriveAssociatedTokenAddress(payer, types.TokenProgramID, mint)
	if err != nil {
		return err
	}

	// mint_token: 5 units to the holder
	mintArgs := issuance.MintTokenArgs{Amount: 5}
	err = submit(executor, payer, []*types.Instruction{{
		ProgramID: issuanceID,
		Accounts: []types.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: holder},
			{Pubkey: mint, IsWritable: true},
			{Pubkey: holderBalance, IsWritable: true},
			{Pubkey: types.TokenProgramID},
			{Pubkey: types.AssociatedTokenProgramID},
			{Pubkey: types.SystemProgramID},
		},
		Data: mintArgs.Encode(),
	}}, payerPriv)
	if err != nil {
		return fmt.Errorf("mint_token: %w", err)
	}

	// transfer_tokens: 2 units from the holder back to the payer
	transferArgs := issuance.TransferTokensArgs{Amount: 2}
	err = submit(executor, holder, []*types.Instruction{{
		ProgramID: issuanceID,
		Accounts: []types.AccountMeta{
			{Pubkey: holder, IsSigner: true, IsWritable: true},
			{Pubkey: payer},
			{Pubkey: mint},
			{Pubkey: holderBalance, IsWritable: true},
			{Pubkey: payerBalance, IsWritable: true},
			{Pubkey: types.TokenProgramID},
			{Pubkey: types.AssociatedTokenProgramID},
			{Pubkey: types.SystemProgramID},
		},
		Data: transferArgs.Encode(),
	}}, holderPriv)
	if err != nil {
		return fmt.Errorf("transfer_tokens: %w", err)
	}

	for _, balance := range []struct {
		name   string
		pubkey types.Pubkey
	}{
		{"holder", holderBalance},
		{"payer", payerBalance},
	} {
		account, err := db.GetAccount(balance.pubkey)
		if err != nil {
			return err
		}
		state, err := token.DeserializeTokenAccount(account.Data)
		if err != nil {
			return err
		}
		log.Printf("Demo: %s balance %d base units", balance.name, state.Amount)
	}

	mintAccount, err := db.GetAccount(mint)
	if err != nil {
		return err
	}
	mintState, err := token.DeserializeMint(mintAccount.Data)
	if err != nil {
		return err
	}
	log.Printf("Demo: total supply %d base units, decimals %d", mintState.Supply, mintState.Decimals)
	return nil
}

// submit builds, signs, and executes one transaction, failing on any
// transaction error.
func submit(executor *engine.Executor, feePayer types.Pubkey, instructions []*types.Instruction, privs ...ed25519.PrivateKey) error {
	builder := engine.NewTransactionBuilder().SetFeePayer(feePayer)
	for _, instruction := range instructions {
		builder.AddInstruction(instruction)
	}
	tx, err := builder.Build()
	if err != nil {
		return err
	}
	if err := crypto.SignTransaction(tx, privs...); err != nil {
		return err
	}

	result, err := executor.ExecuteTransaction(tx)
	if err != nil {
		return err
	}
	if !result.Success {
		for _, line := range result.Logs {
			log.Printf("  %s", line)
		}
		return result.Error
	}
	return nil
}

func demoKeypair() (types.Pubkey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return types.ZeroPubkey, nil, err
	}
	pubkey, err := types.PubkeyFromBytes(pub)
	if err != nil {
		return types.ZeroPubkey, nil, err
	}
	return pubkey, priv, nil
}
