package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/registry-scraper/internal/proxy"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Free-proxy utilities",
}

var proxyFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Find a working free proxy",
	Long:  "Scrapes the public proxy list, checks candidates against a live endpoint, and prints the best proxy URL.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		finder := proxy.NewFinder(
			proxy.WithListURL(cfg.Proxy.ListURL),
			proxy.WithTestURL(cfg.Proxy.TestURL),
			proxy.WithMaxChecks(cfg.Proxy.MaxChecks),
		)

		url, err := finder.Find(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(url)
		return nil
	},
}

func init() {
	proxyCmd.AddCommand(proxyFindCmd)
	rootCmd.AddCommand(proxyCmd)
}
