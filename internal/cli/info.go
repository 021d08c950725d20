package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"avular-robenv/internal/app"
)

type workspaceOptions struct {
	CatkinFolder  string
	CatkinProfile string
}

func (o *workspaceOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.CatkinFolder, "catkin-folder", "", "Folder holding .catkin_tools (default: parent of the robenv)")
	cmd.Flags().StringVarP(&o.CatkinProfile, "catkin-profile", "p", "", "Catkin profile for the blacklist (default: active profile)")
}

func newInfoCommand() *cobra.Command {
	opts := workspaceOptions{}
	cmd := &cobra.Command{
		Use:   "info [package|workspace]",
		Short: "Show installed packages, a package or a workspace build plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := app.InfoRequest{Root: rootDir(), CatkinRoot: opts.CatkinFolder, CatkinProfile: opts.CatkinProfile}
			if len(args) == 1 {
				req.Target = args[0]
			}
			service := newAppService()
			result, err := service.Info(cmd.Context(), req)
			if err != nil {
				return err
			}
			printInfo(result)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func printInfo(result app.InfoResult) {
	switch {
	case result.Package != nil:
		pkg := result.Package
		fmt.Printf("Name: %s\nPackage: %s\nVersion: %s\nArchitecture: %s\nMaintainer: %s\nFile: %s\n",
			pkg.Name, pkg.Package, pkg.Version, pkg.Architecture, pkg.Maintainer, pkg.Path)
	case result.Workspace != nil:
		ws := result.Workspace
		fmt.Printf("workspace: %s (%d packages)\n", ws.Path, len(ws.Modules))
		fmt.Println("build order:")
		for i, stage := range ws.Stages {
			fmt.Printf("  stage %d: %s\n", i+1, strings.Join(stage, ", "))
		}
		fmt.Println("external dependencies:")
		for _, dep := range ws.External {
			fmt.Printf("  - %s (required by %s)\n", dep.Name, strings.Join(dep.RequiredBy, ", "))
		}
	default:
		fmt.Printf("installed packages: %d\n", len(result.Installed))
		for _, name := range result.Installed {
			fmt.Printf("  - %s\n", name)
		}
	}
}

func newClearCacheCommand() *cobra.Command {
	opts := workspaceOptions{}
	cmd := &cobra.Command{
		Use:   "clear-cache [workspace]",
		Short: "Remove the build directories left in workspace packages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := app.ClearCacheRequest{Root: rootDir(), Workspace: ".", CatkinRoot: opts.CatkinFolder, CatkinProfile: opts.CatkinProfile}
			if len(args) == 1 {
				req.Workspace = args[0]
			}
			service := newAppService()
			result, err := service.ClearCache(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("cleared build cache of %d packages\n", len(result.Cleared))
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}
