package cmds

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/pinchchat/pkg/i18n"
	"github.com/go-go-golems/pinchchat/pkg/provision"
)

func newAgentsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Provision OpenClaw agents",
	}
	cmd.PersistentFlags().String("openclaw-root", "", "OpenClaw home directory (default ~/.openclaw)")
	cmd.PersistentFlags().Duration("reload-delay", provision.DefaultReloadDelay, "Wait after each openclaw.json write, 0 to skip")

	newProvisioner := func() (*provision.Provisioner, error) {
		delay := a.settings.Provision.ReloadDelay
		if delay == 0 {
			delay = -1
		}
		return provision.New(provision.Options{Root: a.settings.Provision.Root, ReloadDelay: delay, Logger: log.Logger})
	}

	var spec provision.AgentSpec
	var soulFile string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Create an agent workspace and register it in openclaw.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newProvisioner()
			if err != nil {
				return err
			}
			spec.ID = args[0]
			if soulFile != "" {
				b, err := os.ReadFile(soulFile)
				if err != nil {
					return errors.Wrapf(err, "read %q", soulFile)
				}
				spec.SoulMD = string(b)
			}
			entry, err := p.Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			cmd.PrintErrln(i18n.Default().Format("agents.created", map[string]string{"agent": entry.ID}))
			return writeJSON(cmd.OutOrStdout(), entry)
		},
	}
	add.Flags().StringVar(&spec.Name, "name", "", "Display name")
	add.Flags().StringVar(&spec.Model, "model", "", "Model identifier")
	add.Flags().StringVar(&soulFile, "soul-file", "", "File copied to the workspace as SOUL.md")
	add.Flags().StringSliceVar(&spec.Skills, "skill", nil, "Allowed tool/skill (repeatable)")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an agent from openclaw.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newProvisioner()
			if err != nil {
				return err
			}
			if err := p.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.PrintErrln(i18n.Default().Format("agents.deleted", map[string]string{"agent": args[0]}))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newProvisioner()
			if err != nil {
				return err
			}
			agents, err := p.List()
			if err != nil {
				return err
			}
			if agents == nil {
				agents = []provision.AgentEntry{}
			}
			return writeJSON(cmd.OutOrStdout(), agents)
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}
