package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-arlaunch"
)

func newProbeCmd(a *app) *cobra.Command {
	var (
		ua       string
		platform string
		probes   []string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the capability profile for a user agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			detector, err := a.detector()
			if err != nil {
				return err
			}
			env := arlaunch.Environment{UserAgent: ua, PlatformHint: platform}
			for _, probe := range probes {
				name, value, hasValue := strings.Cut(strings.TrimSpace(probe), "=")
				if name == "" {
					continue
				}
				if env.Probes == nil {
					env.Probes = map[string]bool{}
				}
				env.Probes[strings.ToLower(name)] = !hasValue || value == "1" || strings.EqualFold(value, "true")
			}

			profile := detector.Profile(env)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				arlaunch.Profile
				CanAugment bool `json:"can_augment"`
			}{Profile: profile, CanAugment: profile.CanAugmentAtAll()})
		},
	}
	cmd.Flags().StringVar(&ua, "ua", "", "user agent string")
	cmd.Flags().StringVar(&platform, "platform", "", "Sec-CH-UA-Platform hint")
	cmd.Flags().StringSliceVar(&probes, "probe", nil, "client probe, e.g. rel_ar=1 (repeatable)")
	_ = cmd.MarkFlagRequired("ua")
	return cmd
}
