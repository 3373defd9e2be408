package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "agency-backend",
		Short:         "Web agency backend: accounts, orders, services and deposit payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("port", "", "HTTP port (overrides PORT)")
	_ = v.BindPFlag("PORT", rootCmd.PersistentFlags().Lookup("port"))

	rootCmd.AddCommand(serveCmd(v), reconcileCmd(v))
	rootCmd.RunE = serveCmd(v).RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
