package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/ledger"
)

var markCmd = &cobra.Command{
	Use:   "mark [video...]",
	Short: "Mark videos as processed so runs skip them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(store ledger.Store) error {
			for _, arg := range args {
				name := filepath.Base(arg)
				if err := ledger.MarkManual(store, name); err != nil {
					return err
				}
				log.Info().Str("video", name).Msg("marked as processed")
			}
			return nil
		})
	},
}

var unmarkCmd = &cobra.Command{
	Use:   "unmark [video...]",
	Short: "Forget videos so the next run scans them again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(store ledger.Store) error {
			for _, arg := range args {
				name := filepath.Base(arg)
				known, err := store.IsProcessed(name)
				if err != nil {
					return err
				}
				if !known {
					log.Warn().Str("video", name).Msg("not in ledger")
					continue
				}
				if err := store.Remove(name); err != nil {
					return err
				}
				log.Info().Str("video", name).Msg("removed from ledger")
			}
			return nil
		})
	},
}

func withLedger(cmd *cobra.Command, fn func(ledger.Store) error) error {
	cfg := config.FromContext(cmd.Context())
	store, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	return fn(store)
}
