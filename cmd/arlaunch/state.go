package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-arlaunch/pkg/configurator"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Encode and decode configurator state payloads",
	}
	cmd.AddCommand(newStateEncodeCmd(), newStateDecodeCmd())
	return cmd
}

func newStateEncodeCmd() *cobra.Command {
	var entries []string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode entries into a state payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			state := configurator.New()
			for _, raw := range entries {
				sceneProductID, variationID, meta, err := parseEntry(raw)
				if err != nil {
					return err
				}
				state.Add(sceneProductID, variationID, meta)
			}
			encoded, err := state.Encode()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&entries, "entry", nil, "entry as sceneProductID:variationID[:augment] (repeatable)")
	_ = cmd.MarkFlagRequired("entry")
	return cmd
}

// parseEntry reads "sceneProductID:variationID[:augment]".
func parseEntry(raw string) (string, string, *configurator.Metadata, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return "", "", nil, fmt.Errorf("state: entry %q must be sceneProductID:variationID[:augment]", raw)
	}
	if len(parts) == 2 {
		return parts[0], parts[1], nil, nil
	}
	augment, err := strconv.ParseBool(parts[2])
	if err != nil {
		return "", "", nil, fmt.Errorf("state: entry %q: augment: %w", raw, err)
	}
	return parts[0], parts[1], &configurator.Metadata{Augment: augment}, nil
}

type decodedEntry struct {
	SceneProductID     string `json:"scene_product_id"`
	ProductVariationID string `json:"product_variation_id"`
	Augment            bool   `json:"augment"`
	Type               string `json:"type,omitempty"`
}

func newStateDecodeCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "decode <payload>",
		Short: "Decode a state payload into its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []configurator.Option
			if strict {
				opts = append(opts, configurator.WithStrictAugment())
			}
			state, err := configurator.DecodeStrict(args[0], opts...)
			if err != nil {
				return err
			}

			out := make([]decodedEntry, 0, state.Len())
			for _, entry := range state.Entries() {
				out = append(out, decodedEntry{
					SceneProductID:     entry.SceneProductID,
					ProductVariationID: entry.ProductVariationID,
					Augment:            entry.Meta.Augment,
					Type:               entry.Meta.Type,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "report the stored augment flag instead of the legacy always-true reading")
	return cmd
}
