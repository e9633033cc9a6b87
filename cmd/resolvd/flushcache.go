package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arnegraf/resolvd"
)

var flushCacheCmd = &cobra.Command{
	Use:   "flush-cache",
	Short: "Start a resolver, flush its cache, and report the resulting size",
	RunE:  runFlushCache,
}

func runFlushCache(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := resolvd.NewResolver(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer r.Close()

	r.FlushCache()
	fmt.Printf("cache flushed, %d entries remaining\n", r.CacheLen())
	return nil
}
