package commands

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
)

// ConfigFile is the name of the daemon configuration inside the home
// directory.
const ConfigFile = "config.json"

// SignerConfig declares one co-signer.
type SignerConfig struct {
	// Seed is the Stellar secret seed of the signer key.
	Seed string `json:"seed"`
	// Weight the signer contributes towards the quorum.
	Weight int32 `json:"weight"`
}

// Config is the daemon configuration.
type Config struct {
	// Bind is the address the admin and metrics HTTP listener binds to.
	Bind string `json:"bind"`
	// HorizonURL of the Stellar horizon server.
	HorizonURL string `json:"horizon_url"`
	// NetworkPassphrase selects the Stellar network.
	NetworkPassphrase string `json:"network_passphrase"`
	// AssetCode of the issued token.
	AssetCode string `json:"asset_code"`
	// AssetIssuer is the account the token is issued from.
	AssetIssuer string `json:"asset_issuer"`
	// IssuingAccount is the multi-signature custody account.
	IssuingAccount string `json:"issuing_account"`
	// BaseFee is the per signature network fee in human coin format,
	// for example "0.00001 XLM".
	BaseFee coin.Coin `json:"base_fee"`
	// RequiredWeight is the quorum threshold.
	RequiredWeight int32 `json:"required_weight"`
	// PendingTTL caps how long an operation collects approvals, in a
	// time.Duration string like "24h".
	PendingTTL string `json:"pending_ttl"`
	// ExpiryInterval is how often the expiry sweep runs.
	ExpiryInterval string `json:"expiry_interval"`
	// Signers is the fixed co-signer set.
	Signers []SignerConfig `json:"signers"`
}

func (c Config) Validate() error {
	var err error
	if c.HorizonURL == "" {
		err = errors.AppendField(err, "HorizonURL", errors.ErrEmpty)
	}
	if c.NetworkPassphrase == "" {
		err = errors.AppendField(err, "NetworkPassphrase", errors.ErrEmpty)
	}
	if c.AssetCode == "" {
		err = errors.AppendField(err, "AssetCode", errors.ErrEmpty)
	}
	if c.AssetIssuer == "" {
		err = errors.AppendField(err, "AssetIssuer", errors.ErrEmpty)
	}
	if c.IssuingAccount == "" {
		err = errors.AppendField(err, "IssuingAccount", errors.ErrEmpty)
	}
	if c.RequiredWeight < 1 {
		err = errors.AppendField(err, "RequiredWeight", errors.ErrInput)
	}
	if len(c.Signers) == 0 {
		err = errors.AppendField(err, "Signers", errors.ErrEmpty)
	}
	if _, derr := c.pendingTTL(); derr != nil {
		err = errors.AppendField(err, "PendingTTL", derr)
	}
	if _, derr := c.expiryInterval(); derr != nil {
		err = errors.AppendField(err, "ExpiryInterval", derr)
	}
	return err
}

func (c Config) pendingTTL() (time.Duration, error) {
	return parseDuration(c.PendingTTL)
}

func (c Config) expiryInterval() (time.Duration, error) {
	return parseDuration(c.ExpiryInterval)
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrap(errors.ErrInput, err.Error())
	}
	if d < 0 {
		return 0, errors.Wrap(errors.ErrInput, "negative duration")
	}
	return d, nil
}

// LoadConfig reads the configuration from the home directory.
func LoadConfig(home string) (Config, error) {
	var cfg Config
	raw, err := ioutil.ReadFile(filepath.Join(home, ConfigFile))
	if err != nil {
		return cfg, errors.Wrap(errors.ErrNotFound, err.Error())
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrInput, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteConfig stores the configuration in the home directory.
func WriteConfig(home string, cfg Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(home, ConfigFile)
	return ioutil.WriteFile(path, raw, 0600)
}
