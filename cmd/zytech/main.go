package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zytech",
	Short: "Bots de WhatsApp multi-tenant",
	Long: `zytech atiende el webhook de WhatsApp Cloud API para todas las organizaciones:
resuelve la organización por phone_number_id, corre su bot (menú o LLM) y
registra mensajes, turnos y pedidos.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, templatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
