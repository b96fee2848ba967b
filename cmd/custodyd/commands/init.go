package commands

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/x/signers"
)

// InitCmd writes a configuration template into the home directory. The
// signer keys are generated fresh, everything network specific is left
// for the operator to fill in.
func InitCmd(logger log.Logger, home string, args []string) error {
	var signerCount int
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	initFlags.IntVar(&signerCount, "signers", 3, "number of signer keys to generate")
	if err := initFlags.Parse(args); err != nil {
		return err
	}
	if signerCount < 1 {
		return errors.Wrap(errors.ErrInput, "at least one signer")
	}

	if err := os.MkdirAll(home, 0700); err != nil {
		return err
	}
	path := filepath.Join(home, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return errors.Wrapf(errors.ErrDuplicate, "%s already exists", path)
	}

	cfg := Config{
		Bind:              "localhost:8475",
		HorizonURL:        "https://horizon-testnet.stellar.org",
		NetworkPassphrase: "Test SDF Network ; September 2015",
		AssetCode:         "USDX",
		// 100 stroops, the protocol minimum per signature.
		BaseFee:           coin.NewCoin(0, 10000, "XLM"),
		RequiredWeight:    2,
		PendingTTL:        "24h",
		ExpiryInterval:    "1m",
	}
	for i := 0; i < signerCount; i++ {
		sig, err := signers.GenerateStellarSignatory()
		if err != nil {
			return err
		}
		cfg.Signers = append(cfg.Signers, SignerConfig{
			Seed:   sig.Seed(),
			Weight: 1,
		})
		logger.Info("generated signer key", "account", sig.Account())
	}

	if err := WriteConfig(home, cfg); err != nil {
		return err
	}
	logger.Info("wrote configuration template",
		"path", path,
		"note", "fill in asset_issuer and issuing_account before starting")
	return nil
}
