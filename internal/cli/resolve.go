package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/netio"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <uri>",
	Short: "Resolve an endpoint URI to a socket address",
	Long: `Resolve the host of an endpoint URI such as rtsp://camera.local or
rtp://10.0.0.5:5004. The protocol's default port is used when none is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	uri, err := address.ParseEndpointURI(args[0])
	if err != nil {
		return err
	}
	nl, _, err := current.newEngine()
	if err != nil {
		return err
	}
	defer nl.Close()

	task := netio.NewResolveEndpointAddress(uri)
	if !nl.ScheduleAndWait(task) {
		return fmt.Errorf("resolve %s: %w", uri, task.Err())
	}
	fmt.Fprintln(cmd.OutOrStdout(), task.Address())
	return nil
}
