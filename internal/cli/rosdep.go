package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"avular-robenv/internal/app"
)

func newRosdepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rosdep",
		Short: "Edit, verify and generate the robenv rosdep rules",
	}
	cmd.AddCommand(newRosdepAddCommand())
	cmd.AddCommand(newRosdepRemoveCommand())
	cmd.AddCommand(newRosdepVerifyCommand())
	cmd.AddCommand(newRosdepGenerateCommand())
	return cmd
}

type rosdepEditOptions struct {
	System    string
	Pip       bool
	DryRun    bool
	RunUpdate bool
}

func (o *rosdepEditOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "Print the resulting rules instead of writing them")
	cmd.Flags().BoolVar(&o.RunUpdate, "run-update", false, "Run rosdep update afterwards")
}

func newRosdepAddCommand() *cobra.Command {
	opts := rosdepEditOptions{}
	cmd := &cobra.Command{
		Use:   "add <key> <system-package>...",
		Short: "Map a rosdep key to system or pip packages",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService()
			result, err := service.RosdepAdd(cmd.Context(), app.RosdepAddRequest{
				Root:      rootDir(),
				Name:      args[0],
				Packages:  args[1:],
				Pip:       opts.Pip,
				System:    opts.System,
				DryRun:    opts.DryRun,
				RunUpdate: opts.RunUpdate,
			})
			if err != nil {
				return err
			}
			printEdit(result, opts.DryRun)
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.System, "system", "", "Operating system key of the rule (default: ubuntu)")
	cmd.Flags().BoolVar(&opts.Pip, "pip", false, "The package is a pip requirement")
	return cmd
}

func newRosdepRemoveCommand() *cobra.Command {
	opts := rosdepEditOptions{}
	cmd := &cobra.Command{
		Use:     "remove <key>",
		Aliases: []string{"rm"},
		Short:   "Delete the rule of a rosdep key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService()
			result, err := service.RosdepRemove(cmd.Context(), app.RosdepRemoveRequest{
				Root:      rootDir(),
				Name:      args[0],
				DryRun:    opts.DryRun,
				RunUpdate: opts.RunUpdate,
			})
			if err != nil {
				return err
			}
			printEdit(result, opts.DryRun)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func printEdit(result app.RosdepEditResult, dryRun bool) {
	if dryRun {
		fmt.Print(result.Rendered)
		return
	}
	fmt.Printf("updated %s\n", result.Path)
}

type rosdepVerifyOptions struct {
	Workspace string
}

func newRosdepVerifyCommand() *cobra.Command {
	opts := rosdepVerifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that rosdep resolves every workspace package and dependency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRosdepVerify(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Workspace, "workspace", ".", "Workspace to verify")
	return cmd
}

func runRosdepVerify(ctx context.Context, opts rosdepVerifyOptions) error {
	service := newAppService()
	result, err := service.RosdepVerify(ctx, app.RosdepVerifyRequest{Root: rootDir(), Workspace: opts.Workspace})
	if err != nil {
		return err
	}
	if len(result.Failures) == 0 {
		fmt.Println("all dependencies found")
		return nil
	}
	fmt.Println("Some dependencies could not be resolved:")
	for _, failure := range result.Failures {
		fmt.Printf("\t- %s %s\n", failure.Name, failure.Reason())
	}
	fmt.Printf("Please fix the rosdep.yaml at: %s\n", result.Path)
	fmt.Println("Then run `rosdep update`")
	return fmt.Errorf("%d rosdep keys could not be resolved", len(result.Failures))
}

type rosdepGenerateOptions struct {
	ROSDistro string
	ROSPath   string
	Output    string
}

func newRosdepGenerateCommand() *cobra.Command {
	opts := rosdepGenerateOptions{}
	cmd := &cobra.Command{
		Use:   "generate [workspace]",
		Short: "Generate rosdep rules for every package of a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := "."
			if len(args) == 1 {
				workspace = args[0]
			}
			return runRosdepGenerate(cmd.Context(), workspace, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ROSDistro, "ros-distro", "", "ROS distribution (default: the robenv distro)")
	cmd.Flags().StringVar(&opts.ROSPath, "ros-path", "", "ROS installation such as /opt/ros/noetic; its name selects the distro")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Write the rules to this file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("ros-distro", "ros-path")
	return cmd
}

func runRosdepGenerate(ctx context.Context, workspace string, opts rosdepGenerateOptions) error {
	distro := opts.ROSDistro
	if opts.ROSPath != "" {
		distro = filepath.Base(filepath.Clean(opts.ROSPath))
	}
	service := newAppService()
	result, err := service.RosdepGenerate(ctx, app.RosdepGenerateRequest{
		Workspace: workspace,
		Distro:    distro,
		Root:      rootDir(),
		Output:    opts.Output,
	})
	if err != nil {
		return err
	}
	if result.Path != "" {
		fmt.Printf("wrote %d rules to %s\n", result.Count, result.Path)
		return nil
	}
	fmt.Print(result.Rendered)
	return nil
}
