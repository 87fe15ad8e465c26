package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bundleeval/internal/strategy"
)

func newStrategiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "strategies",
		Short:       "List identification strategies",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			names := strategy.Names()
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				s, err := strategy.Lookup(name)
				if err != nil {
					return err
				}
				def := ""
				if name == strategy.Default {
					def = "*"
				}
				rows = append(rows, []string{name + def, s.Endpoint(), yesNo(s.RequiresSourceMap()), yesNo(s.Cacheable()), strategy.Describe(s)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Strategy", "Endpoint", "Needs map", "Cacheable", "Description"},
				rows, nil,
			))
			return nil
		},
	}
}
