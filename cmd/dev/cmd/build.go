package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const buildImage = "gophertribe/gobuild:1.25-bookworm"

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build magx cli",
		Long:  "Build the magx cli natively or, for a foreign platform, inside the build container. Cgo is required by the USB HID bridge.",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			goos, _ := flags.GetString("os")
			arch, _ := flags.GetString("arch")
			version, _ := flags.GetString("version")
			crossOs, _ := flags.GetString("cross-os")
			crossArch, _ := flags.GetString("cross-arch")

			if goos != runtime.GOOS || arch != runtime.GOARCH {
				noCache, err := flags.GetBool("no-cache")
				if err != nil {
					return fmt.Errorf("could not get no-cache flag: %w", err)
				}
				return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", goos, arch),
					[]string{"build", "--version", version, "--cross-os", crossOs, "--cross-arch", crossArch},
					build.DockerBuildOpts{NoCache: noCache, Image: buildImage})
			}
			if crossOs != "" && crossArch != "" {
				goos, arch = crossOs, crossArch
			}
			return build.GoBuild("dist/magx", "./cmd/magx", build.GoBuildOpts{
				Version:       version,
				InjectVersion: true,
				ConfigPackage: "github.com/mklimuk/magx/config",
				EnableCgo:     true,
				Arch:          arch,
				OS:            goos,
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	return cmd
}
