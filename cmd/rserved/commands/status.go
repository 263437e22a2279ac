package commands

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusAdminAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rserved server status",
	Long: `Report whether the rserved QAP1 listener and admin API are reachable.

Examples:
  # Check status using config-file defaults
  rserved status

  # Check status against a specific admin API address
  rserved status --admin-addr localhost:9191`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAdminAddr, "admin-addr", "", "admin API address (default: from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.BindAddress, fmt.Sprintf("%d", cfg.Server.Port))
	qapReachable := isReachable(addr, time.Second)

	fmt.Println()
	fmt.Println("rserved Server Status")
	fmt.Println("======================")
	fmt.Println()
	if qapReachable {
		fmt.Printf("  QAP1 listener:  \033[32m● reachable\033[0m (%s)\n", addr)
	} else {
		fmt.Printf("  QAP1 listener:  \033[31m○ unreachable\033[0m (%s)\n", addr)
	}

	adminAddr := statusAdminAddr
	if adminAddr == "" {
		adminAddr = cfg.Admin.Addr
	}
	if !cfg.Admin.Enabled && statusAdminAddr == "" {
		fmt.Println("  Admin API:      disabled in config")
	} else {
		healthy, err := adminHealthy(adminAddr)
		if err != nil || !healthy {
			fmt.Printf("  Admin API:      \033[31m○ unreachable\033[0m (%s)\n", adminAddr)
		} else {
			fmt.Printf("  Admin API:      \033[32m● healthy\033[0m (%s)\n", adminAddr)
		}
	}
	fmt.Println()
	return nil
}

func isReachable(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func adminHealthy(addr string) (bool, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK && body.Status == "ok", nil
}
