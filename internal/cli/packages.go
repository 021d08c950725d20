package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"avular-robenv/internal/app"
)

type addOptions struct {
	DistFolder          string
	Overwrite           bool
	SkipDependencyCheck bool
}

func newAddCommand() *cobra.Command {
	opts := addOptions{}
	cmd := &cobra.Command{
		Use:   "add <deb|url|package>...",
		Short: "Install prebuilt deb files, download links or apt packages into the robenv",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), cmd, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Reinstall packages that are already installed")
	cmd.Flags().BoolVar(&opts.SkipDependencyCheck, "skip-dependency-check", false, "Install without checking the package dependencies")
	cmd.Flags().StringVarP(&opts.DistFolder, "dist-folder", "o", "dist", "Folder for downloaded deb files")
	return cmd
}

func runAdd(ctx context.Context, cmd *cobra.Command, opts addOptions, refs []string) error {
	service := newAppService()
	result, err := service.Add(ctx, app.AddRequest{
		Root:                rootDir(),
		Refs:                refs,
		DistDir:             resolveString(cmd, opts.DistFolder, "dist_folder", "dist-folder"),
		Overwrite:           opts.Overwrite,
		SkipDependencyCheck: opts.SkipDependencyCheck,
	})
	if err != nil {
		return err
	}
	for _, installed := range result.Installed {
		fmt.Printf("installed %s (%s)\n", installed.Name, installed.DebName)
	}
	for _, name := range result.Skipped {
		fmt.Printf("skipped %s, already installed\n", name)
	}
	return nil
}

type removeOptions struct {
	Force bool
}

func newRemoveCommand() *cobra.Command {
	opts := removeOptions{}
	cmd := &cobra.Command{
		Use:     "remove <package>...",
		Aliases: []string{"rm", "uninstall"},
		Short:   "Uninstall packages from the robenv",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService()
			if err := service.Remove(cmd.Context(), app.RemoveRequest{Root: rootDir(), Packages: args, Force: opts.Force}); err != nil {
				return err
			}
			fmt.Printf("removed %d packages\n", len(args))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Remove even when installed packages depend on it")
	return cmd
}
