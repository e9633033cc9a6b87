package main

import "github.com/arnegraf/resolvd"

func loadConfig() (*resolvd.Config, error) {
	if cfgFile == "" {
		return resolvd.DefaultConfig()
	}
	return resolvd.LoadConfigFile(cfgFile)
}
