package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/diwise/hal-client/internal/pkg/application/walker"
	"github.com/diwise/hal-client/pkg/hal"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
)

const (
	appName string = "hal-walker"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	var configPath, apiName, root string
	var depth int

	flag.StringVar(&configPath, "config", env.GetVariableOrDefault(ctx, "HAL_WALKER_CONFIG_PATH", "/opt/diwise/config/hal-walker.yaml"), "path to the api configuration file")
	flag.StringVar(&apiName, "api", env.GetVariableOrDefault(ctx, "HAL_WALKER_API", ""), "name of the configured api to walk (default is the first one)")
	flag.StringVar(&root, "root", "", "uri to start from instead of the configured entrypoint")
	flag.IntVar(&depth, "depth", -1, "number of link levels to follow instead of the configured depth")
	flag.Parse()

	api, err := loadAPI(configPath, apiName)
	if err != nil {
		log.Error("failed to load configuration", "path", configPath, "err", err.Error())
		os.Exit(1)
	}

	if root == "" {
		root = api.Root()
	}

	if depth >= 0 {
		api.Depth = depth
	}

	w, err := walker.New(ctx, hal.DefaultSession(), *api)
	if err != nil {
		log.Error("failed to create walker", "err", err.Error())
		os.Exit(1)
	}

	log.Info("starting walk", "api", api.Name, "root", root, "depth", api.Depth)

	m, err := w.Fetch(ctx, root)
	if err != nil {
		log.Error("failed to fetch root resource", "root", root, "err", err.Error())
		os.Exit(1)
	}

	err = w.Print(ctx, m, os.Stdout)
	if err != nil {
		log.Error("failed to print resource graph", "err", err.Error())
		os.Exit(1)
	}
}

func loadAPI(configPath, apiName string) (*walker.API, error) {
	f, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := walker.LoadConfiguration(f)
	if err != nil {
		return nil, err
	}

	api, ok := cfg.API(apiName)
	if !ok {
		return nil, fmt.Errorf("no api named %q in configuration", apiName)
	}

	return api, nil
}
