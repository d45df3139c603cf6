package provshare

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/provshare/provshare/pkg/crypt"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/storage"
)

// DefaultLoginChallenge is the fixed message a wallet signs to derive the
// messaging identity. Changing it changes every derived identity, so it is
// part of the protocol, not a tunable.
const DefaultLoginChallenge = "Sign this message to derive your ProvShare research identity. This does not cost anything."

// Config configures a Client. The external collaborators can be supplied
// directly (Medium, Blobs) or built from endpoints (Relays, Storage*URL).
type Config struct {
	// Relays lists websocket endpoints of the broadcast medium. Ignored if
	// Medium is set.
	Relays []string `yaml:"relays"`
	// StorageUploadURL and StorageGatewayURL locate the content-addressed
	// blob collaborator. Ignored if Blobs is set.
	StorageUploadURL  string `yaml:"storageUploadURL"`
	StorageGatewayURL string `yaml:"storageGatewayURL"`
	// LocalPath is the directory for the badger-backed local store holding
	// fetched share receipts and cached profiles. Empty disables persistence.
	LocalPath string `yaml:"localPath"`
	// LoginChallenge overrides the wallet login challenge. Leave empty for
	// DefaultLoginChallenge.
	LoginChallenge string `yaml:"loginChallenge"`

	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger `yaml:"-"`
	// Signer optionally supplies an already-established identity capability.
	Signer crypt.Signer `yaml:"-"`
	// Medium optionally supplies the broadcast collaborator directly.
	Medium relay.Medium `yaml:"-"`
	// Blobs optionally supplies the blob collaborator directly.
	Blobs storage.BlobStore `yaml:"-"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return conf, nil
}

func (c *Config) challenge() string {
	if c.LoginChallenge != "" {
		return c.LoginChallenge
	}
	return DefaultLoginChallenge
}
