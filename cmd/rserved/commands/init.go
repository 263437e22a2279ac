package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/rserved/internal/cli/prompt"
	"github.com/marmos91/rserved/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively generate a configuration file",
	Long: `Walk through rserved's configuration options and write a YAML config
file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/rserved/config.yaml. Use --config to specify a custom path.

Examples:
  # Initialize with default location
  rserved init

  # Initialize with a custom path
  rserved init --config /etc/rserved/config.yaml

  # Force overwrite an existing config file
  rserved init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		home, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		configPath = filepath.Join(home, "rserved", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()

	bindAddr, err := prompt.Input("Bind address", cfg.Server.BindAddress)
	if err != nil {
		return handlePromptErr(err)
	}
	cfg.Server.BindAddress = bindAddr

	port, err := prompt.InputPort("Listen port", cfg.Server.Port)
	if err != nil {
		return handlePromptErr(err)
	}
	cfg.Server.Port = port

	workdir, err := prompt.Input("Workdir root", cfg.Server.Workdir)
	if err != nil {
		return handlePromptErr(err)
	}
	cfg.Server.Workdir = workdir

	localOnly, err := prompt.Confirm("Restrict connections to loopback clients", cfg.Server.LocalOnly)
	if err != nil {
		return handlePromptErr(err)
	}
	cfg.Server.LocalOnly = localOnly

	enableAdmin, err := prompt.Confirm("Enable the admin HTTP API", cfg.Admin.Enabled)
	if err != nil {
		return handlePromptErr(err)
	}
	cfg.Admin.Enabled = enableAdmin
	if enableAdmin {
		addr, err := prompt.Input("Admin API address", cfg.Admin.Addr)
		if err != nil {
			return handlePromptErr(err)
		}
		cfg.Admin.Addr = addr

		secret, err := randomHexSecret(32)
		if err != nil {
			return fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Admin.JWTSecret = secret
	}

	enableArchive, err := prompt.Confirm("Enable S3 workdir archival on connection close", cfg.Archive.Enabled)
	if err != nil {
		return handlePromptErr(err)
	}
	cfg.Archive.Enabled = enableArchive
	if enableArchive {
		bucket, err := prompt.Input("S3 bucket", "")
		if err != nil {
			return handlePromptErr(err)
		}
		cfg.Archive.Bucket = bucket

		region, err := prompt.Input("AWS region", "us-east-1")
		if err != nil {
			return handlePromptErr(err)
		}
		cfg.Archive.Region = region
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("\nConfiguration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review the generated file and adjust as needed")
	fmt.Printf("  2. Start the server with: rserved start --config %s\n", configPath)
	if enableAdmin {
		fmt.Println("\nSecurity note:")
		fmt.Println("  A random JWT secret was generated for the admin API.")
		fmt.Println("  For production, prefer setting RSERVED_ADMIN_JWT_SECRET from a secrets manager.")
	}
	return nil
}

func handlePromptErr(err error) error {
	if prompt.IsAborted(err) {
		return fmt.Errorf("init aborted")
	}
	return err
}

func randomHexSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
