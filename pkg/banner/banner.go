package banner

import (
	"fmt"

	"peerchat/pkg/config"
)

const banner = `
██████╗ ███████╗███████╗██████╗  ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██╔════╝██╔════╝██╔══██╗██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██████╔╝█████╗  █████╗  ██████╔╝██║     ███████║███████║   ██║
██╔═══╝ ██╔══╝  ██╔══╝  ██╔══██╗██║     ██╔══██║██╔══██║   ██║
██║     ███████╗███████╗██║  ██║╚██████╗██║  ██║██║  ██║   ██║
╚═╝     ╚══════╝╚══════╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print shows the startup banner with the effective runtime settings.
func Print(cfg config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Inspect:  http://%s\n", cfg.API.Addr())
	fmt.Printf("Ledger:   %s\n", cfg.Client.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if cfg.Retention.Enabled {
		fmt.Printf("Retention: cron %q\n", cfg.Retention.Cron)
	}
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s/chats'\n", cfg.API.Addr())
	fmt.Printf("curl 'http://%s/chats/d:ab12/messages?limit=10'\n", cfg.API.Addr())
	fmt.Printf("curl -X POST 'http://%s/chats/d:ab12/messages' -d '{\"text\":\"hello\"}'\n", cfg.API.Addr())
}
