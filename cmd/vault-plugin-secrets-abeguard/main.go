package main

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/sdk/plugin"
	flag "github.com/spf13/pflag"

	"abeguard/config"
	abeguard "abeguard/plugin"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{})
	apiClientMeta := &api.PluginAPIClientMeta{}

	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.AddGoFlagSet(apiClientMeta.FlagSet())
	configPath := flags.String("config", "", "path to the deployment config file")
	flags.Parse(os.Args[1:])

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	tlsConfig := apiClientMeta.GetTLSConfig()
	tlsProviderFunc := api.VaultPluginTLSProvider(tlsConfig)

	err := plugin.Serve(&plugin.ServeOpts{
		BackendFactoryFunc: abeguard.FactoryWithConfig(cfg),
		TLSProviderFunc:    tlsProviderFunc,
	})
	if err != nil {
		logger.Error("plugin shutting down", "error", err)
		os.Exit(1)
	}
}
