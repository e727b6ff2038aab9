// Command smsgate runs the secure SMS ingestion and forwarding gateway.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "smsgate",
	Short: "Secure SMS ingestion and forwarding gateway",
	Long: `smsgate receives encrypted sensitive SMS messages (OTPs, transaction
alerts, bill notices, security alerts) from a mobile relay, verifies and
decrypts them, deduplicates and classifies them, and forwards a masked
rendering to the WhatsApp Business Cloud API.`,
}

func init() {
	cobra.OnInitialize(initEnv)
}

// initEnv binds SMSGATE_* environment variables so any config flag can be
// supplied from the environment.
func initEnv() {
	viper.SetEnvPrefix("SMSGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
