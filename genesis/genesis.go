package genesis

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/kyc"
	"github.com/brickvault/corechain/native/property"
	"github.com/brickvault/corechain/native/vault"
)

// AdminKeystorePassphraseEnv names the environment variable createDefault
// and the daemon read the admin keystore passphrase from, mirroring
// cmd/nhb's NHB_VALIDATOR_PASS convention.
const AdminKeystorePassphraseEnv = "VAULTD_ADMIN_PASS"

// PropertyManifest describes one Property deployment to initialize
// (SPEC_FULL.md C.4).
type PropertyManifest struct {
	Name            string `toml:"Name"`
	Address         string `toml:"Address"`
	Symbol          string `toml:"Symbol"`
	Decimals        uint64 `toml:"Decimals"`
	TotalSupply     string `toml:"TotalSupply"`
	TokenPrice      string `toml:"TokenPrice"`
	CashFlowMonthly string `toml:"CashFlowMonthly"`
}

// Manifest is the on-disk TOML shape a deployment is bootstrapped from,
// grounded on config.Config's create-default-if-missing load shape.
type Manifest struct {
	KycAdmin          string             `toml:"KycAdmin"`
	VaultAdmin        string             `toml:"VaultAdmin"`
	VaultAddress      string             `toml:"VaultAddress"`
	Stablecoin        string             `toml:"Stablecoin"`
	AdminKeystorePath string             `toml:"AdminKeystorePath"`
	Properties        []PropertyManifest `toml:"Properties"`
}

// Load reads manifest from path, creating a minimal default manifest (no
// properties, a freshly generated admin address whose key is saved to an
// encrypted keystore beside the manifest) if it does not yet exist — the
// same create-if-missing shape the teacher's config loader uses.
func Load(path string) (*Manifest, error) {
	m := &Manifest{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, m); err != nil {
		return nil, fmt.Errorf("genesis: decode manifest: %w", err)
	}
	return m, nil
}

func createDefault(path string) (*Manifest, error) {
	adminKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("genesis: generate admin key: %w", err)
	}
	admin := adminKey.PubKey().Address()
	keystorePath := filepath.Join(filepath.Dir(path), "admin.keystore")
	if err := crypto.SaveToKeystore(keystorePath, adminKey, os.Getenv(AdminKeystorePassphraseEnv)); err != nil {
		return nil, fmt.Errorf("genesis: save admin keystore: %w", err)
	}
	vaultKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("genesis: generate vault key: %w", err)
	}
	vaultAddr := crypto.MustNewAddress(crypto.ContractPrefix, vaultKey.PubKey().Address().Bytes())
	stablecoinKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("genesis: generate stablecoin key: %w", err)
	}
	stablecoin := crypto.MustNewAddress(crypto.ContractPrefix, stablecoinKey.PubKey().Address().Bytes())

	m := &Manifest{
		KycAdmin:          admin.String(),
		VaultAdmin:        admin.String(),
		VaultAddress:      vaultAddr.String(),
		Stablecoin:        stablecoin.String(),
		AdminKeystorePath: keystorePath,
		Properties:        nil,
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: create manifest: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return nil, fmt.Errorf("genesis: encode manifest: %w", err)
	}
	return m, nil
}

// Wiring holds the initialized engines ready to serve requests.
type Wiring struct {
	Registry   *kyc.Registry
	Vault      *vault.Engine
	Properties map[string]*property.Engine
}

// Apply performs the one-time Initialize calls against already-state-bound
// engines, per the manifest (SPEC_FULL.md C.4).
func Apply(manifest *Manifest, registry *kyc.Registry, vaultEngine *vault.Engine, properties map[string]*property.Engine) (*Wiring, error) {
	kycAdmin, err := crypto.DecodeAddress(manifest.KycAdmin)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode KycAdmin: %w", err)
	}
	if err := registry.Initialize(kycAdmin); err != nil {
		return nil, fmt.Errorf("genesis: initialize kyc registry: %w", err)
	}

	vaultAdmin, err := crypto.DecodeAddress(manifest.VaultAdmin)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode VaultAdmin: %w", err)
	}
	vaultAddr, err := crypto.DecodeAddress(manifest.VaultAddress)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode VaultAddress: %w", err)
	}
	stablecoin, err := crypto.DecodeAddress(manifest.Stablecoin)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode Stablecoin: %w", err)
	}
	if err := vaultEngine.Initialize(vaultAdmin, vaultAddr, stablecoin); err != nil {
		return nil, fmt.Errorf("genesis: initialize vault: %w", err)
	}

	for _, pm := range manifest.Properties {
		eng, ok := properties[pm.Name]
		if !ok {
			return nil, fmt.Errorf("genesis: no engine wired for property %q", pm.Name)
		}
		propertyAddr, err := crypto.DecodeAddress(pm.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis: decode Address for property %q: %w", pm.Name, err)
		}
		totalSupply, ok := new(big.Int).SetString(pm.TotalSupply, 10)
		if !ok {
			return nil, fmt.Errorf("genesis: invalid TotalSupply for property %q", pm.Name)
		}
		tokenPrice, ok := new(big.Int).SetString(pm.TokenPrice, 10)
		if !ok {
			return nil, fmt.Errorf("genesis: invalid TokenPrice for property %q", pm.Name)
		}
		cashFlow := big.NewInt(0)
		if pm.CashFlowMonthly != "" {
			cashFlow, ok = new(big.Int).SetString(pm.CashFlowMonthly, 10)
			if !ok {
				return nil, fmt.Errorf("genesis: invalid CashFlowMonthly for property %q", pm.Name)
			}
		}
		meta := property.TokenMetadata{
			Name:        pm.Name,
			Symbol:      pm.Symbol,
			Decimals:    pm.Decimals,
			TotalSupply: totalSupply,
			TokenPrice:  tokenPrice,
			Vault:       vaultAddr,
			// The KYC registry has no opaque contract address of its own in
			// this design (Property consults it in-process via the
			// KycChecker interface); KycAdmin is recorded here as its
			// identifying address for the Property's immutable metadata.
			Kyc:        kycAdmin,
			Stablecoin: stablecoin,
		}
		eng.SetSelf(propertyAddr)
		if err := eng.Initialize(vaultAdmin, meta, cashFlow); err != nil {
			return nil, fmt.Errorf("genesis: initialize property %q: %w", pm.Name, err)
		}
		if err := vaultEngine.AuthorizeProperty(vaultAdmin, propertyAddr); err != nil {
			return nil, fmt.Errorf("genesis: authorize property %q: %w", pm.Name, err)
		}
	}

	return &Wiring{Registry: registry, Vault: vaultEngine, Properties: properties}, nil
}
