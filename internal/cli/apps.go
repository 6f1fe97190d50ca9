package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/demo"
)

// AppsOptions holds flags for the apps command.
type AppsOptions struct {
	*RootOptions
	StoreOptions
	Instances bool
}

// AppInfo describes a registered app.
type AppInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Instances   []InstanceInfo `json:"instances,omitempty"`
}

// InstanceInfo summarizes a stored instance.
type InstanceInfo struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`
}

// NewAppsCommand creates the apps command.
func NewAppsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List registered apps",
		Long: `List the apps a server exposes, optionally with their stored instances.

Example:
  rehook apps
  rehook apps --instances --db ./rehook.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApps(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Instances, "instances", false, "include stored instances")
	opts.StoreOptions.bind(cmd)

	return cmd
}

func runApps(opts *AppsOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	apps := demo.Apps()
	infos := make([]AppInfo, len(apps))
	for i, a := range apps {
		infos[i] = AppInfo{Name: a.Name, Description: a.Description}
	}

	if opts.Instances {
		if err := addInstances(opts, cmd, infos); err != nil {
			return err
		}
	}

	if f.JSON() {
		return f.Success(infos)
	}
	for _, a := range infos {
		fmt.Fprintf(f.Writer, "%-10s %s\n", a.Name, a.Description)
		for _, inst := range a.Instances {
			f.Dim("  %s (seq %d)", inst.ID, inst.Seq)
		}
	}
	return nil
}

func addInstances(opts *AppsOptions, cmd *cobra.Command, infos []AppInfo) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := opts.StoreOptions.apply(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	st, err := openExisting(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	for i := range infos {
		insts, err := st.ListInstances(cmd.Context(), infos[i].Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list instances", err)
		}
		for _, inst := range insts {
			infos[i].Instances = append(infos[i].Instances, InstanceInfo{ID: inst.ID, Seq: inst.Seq})
		}
	}
	return nil
}
