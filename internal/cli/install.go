package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"avular-robenv/internal/app"
	"avular-robenv/internal/types"
)

type installOptions struct {
	Workspace           string
	DistFolder          string
	CatkinFolder        string
	CatkinProfile       string
	Jobs                int
	NoOverwrite         bool
	CanFail             bool
	NoCheckLaunchFiles  bool
	LaunchFilesWillFail bool
}

func newInstallCommand() *cobra.Command {
	opts := installOptions{}
	cmd := &cobra.Command{
		Use:     "install [workspace]",
		Aliases: []string{"build"},
		Short:   "Build every package of a workspace and install it into the robenv",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Workspace = "."
			if len(args) == 1 {
				opts.Workspace = args[0]
			}
			return runInstall(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoOverwrite, "no-overwrite", false, "Keep deb files that already exist in the dist folder")
	cmd.Flags().BoolVar(&opts.CanFail, "can-fail", false, "Continue with the next package when one fails")
	cmd.Flags().BoolVar(&opts.NoCheckLaunchFiles, "no-check-launchfiles", false, "Do not check that launch files are packaged")
	cmd.Flags().BoolVar(&opts.LaunchFilesWillFail, "check-launchfiles-will-fail", false, "Fail a package whose launch files are not packaged")
	cmd.Flags().StringVarP(&opts.DistFolder, "dist-folder", "o", "dist", "Folder for the built deb files")
	cmd.Flags().StringVar(&opts.CatkinFolder, "catkin-folder", "", "Folder holding .catkin_tools (default: parent of the robenv)")
	cmd.Flags().StringVarP(&opts.CatkinProfile, "catkin-profile", "p", "", "Catkin profile for the blacklist (default: active profile)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "Parallel builds; bare -j or 0 uses every CPU")
	cmd.Flags().Lookup("jobs").NoOptDefVal = "0"
	cmd.MarkFlagsMutuallyExclusive("no-check-launchfiles", "check-launchfiles-will-fail")
	return cmd
}

func runInstall(ctx context.Context, cmd *cobra.Command, opts installOptions) error {
	mode := types.LaunchFileCheckWarn
	switch {
	case opts.NoCheckLaunchFiles:
		mode = types.LaunchFileCheckOff
	case opts.LaunchFilesWillFail:
		mode = types.LaunchFileCheckWillFail
	}

	service := newAppService()
	result, err := service.Install(ctx, app.InstallRequest{
		Root:          rootDir(),
		Workspace:     opts.Workspace,
		DistDir:       resolveString(cmd, opts.DistFolder, "dist_folder", "dist-folder"),
		CatkinRoot:    opts.CatkinFolder,
		CatkinProfile: opts.CatkinProfile,
		Jobs:          resolveInt(cmd, opts.Jobs, "jobs", "jobs"),
		Overwrite:     !opts.NoOverwrite,
		CanFail:       opts.CanFail,
		LaunchCheck:   mode,
	})
	if err != nil {
		return err
	}
	fmt.Printf("installed %d packages in %d stages\n", len(result.Result.Installables), result.Stages)
	if result.Result.Failed() {
		return fmt.Errorf("failed packages: %v", result.Result.FailedPackages)
	}
	return nil
}
