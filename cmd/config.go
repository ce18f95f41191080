package cmd

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

const (
	ConfigFileName = "config.json"
	KeyFileName    = "identity.json"

	// DefaultUpperBound is roughly a few seconds of squaring on current
	// hardware; run `pol calibrate` to fit it to the local machine.
	DefaultUpperBound = 150000
)

// PoLConfig is the node's persistent configuration, stored as JSON next to
// the identity key.
type PoLConfig struct {
	ListenOn      string `json:"listen_on"`
	Modulus       string `json:"modulus,omitempty"`
	UpperBound    uint32 `json:"upper_bound"`
	DataDirectory string `json:"data_directory"`
	HTTPPort      int    `json:"http_port"`
	GRPCPort      int    `json:"grpc_port"`
	EnableHTTP    bool   `json:"enable_http"`
	EnableGRPC    bool   `json:"enable_grpc"`
	Version       int    `json:"version"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func defaultPoLConfig() *PoLConfig {
	return &PoLConfig{
		ListenOn:      ":9199",
		UpperBound:    DefaultUpperBound,
		DataDirectory: filepath.Join(configDir(), "data"),
		HTTPPort:      8080,
		GRPCPort:      9090,
		EnableHTTP:    true,
		EnableGRPC:    false,
		Version:       1,
		CreatedAt:     getCurrentTimestamp(),
		UpdatedAt:     getCurrentTimestamp(),
	}
}

// ModulusInt parses the configured modulus, falling back to the RSA-2048
// challenge modulus when unset.
func (c *PoLConfig) ModulusInt() (*big.Int, error) {
	if c.Modulus == "" {
		return RSA2048, nil
	}
	n, ok := new(big.Int).SetString(c.Modulus, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("invalid modulus in config")
	}
	return n, nil
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pol"
	}
	return filepath.Join(home, ".pol")
}

func configPath() string {
	return filepath.Join(configDir(), ConfigFileName)
}

func keyPath() string {
	return filepath.Join(configDir(), KeyFileName)
}

func getCurrentTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// loadConfig reads the config file, creating a default one on first use.
func loadConfig() (*PoLConfig, error) {
	data, err := os.ReadFile(configPath())
	if os.IsNotExist(err) {
		config := defaultPoLConfig()
		if err := saveConfig(config); err != nil {
			return nil, err
		}
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := defaultPoLConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("malformed config %s: %w", configPath(), err)
	}
	return config, nil
}

func saveConfig(config *PoLConfig) error {
	if err := os.MkdirAll(configDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	config.UpdatedAt = getCurrentTimestamp()

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0644)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage the proof-of-latency node configuration. Configuration is
stored in JSON format in the same directory as the identity key.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		data, _ := json.MarshalIndent(config, "", "  ")
		fmt.Println(string(data))
	},
}

var configSetBoundCmd = &cobra.Command{
	Use:   "setbound [iterations]",
	Short: "Set the squaring upper bound",
	Long: `Set the maximum number of sequential squarings a session performs
before self-capping. Both peers of an exchange must use the same value.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var bound uint32
		if _, err := fmt.Sscanf(args[0], "%d", &bound); err != nil || bound == 0 {
			fmt.Printf("Invalid upper bound: %s\n", args[0])
			os.Exit(1)
		}

		config, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.UpperBound = bound
		if err := saveConfig(config); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Upper bound set to %d squarings\n", bound)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetBoundCmd)
}
