package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/control"
	"github.com/momentics/hioload-netio/netio"
	"github.com/momentics/hioload-netio/packet"
)

func init() {
	udpRecvCmd.Flags().StringVar(&recvBind, "bind", "0.0.0.0:5004", "local address, host:port")
	udpRecvCmd.Flags().StringVar(&recvIface, "multicast-iface", "", "interface IP used to join a multicast bind address")
	udpRecvCmd.Flags().BoolVar(&recvReuse, "reuse", false, "set SO_REUSEADDR")
	udpRecvCmd.Flags().IntVar(&recvCount, "count", 0, "exit after this many datagrams (0 = until interrupted)")
	rootCmd.AddCommand(udpRecvCmd)
}

var (
	recvBind  string
	recvIface string
	recvReuse bool
	recvCount int
)

var udpRecvCmd = &cobra.Command{
	Use:   "udp-recv",
	Short: "Receive datagrams and print them",
	Long: `Open a UDP receiver port and print every datagram it delivers.
SIGHUP reloads the configuration file; SIGINT or SIGTERM stops.`,
	RunE: runUDPRecv,
}

func runUDPRecv(cmd *cobra.Command, _ []string) error {
	bind, err := address.ParseHostPort(recvBind)
	if err != nil {
		return err
	}
	nl, _, err := current.newEngine()
	if err != nil {
		return err
	}
	defer nl.Close()

	current.store.OnReload(func(old, cur control.Config) {
		if old.Engine.RecvBatchSize != cur.Engine.RecvBatchSize {
			nl.SetRecvBatchSize(cur.Engine.RecvBatchSize)
			current.log.Info().Int("recv_batch_size", cur.Engine.RecvBatchSize).Log("receive batch size changed")
		}
	})

	sink := packet.NewConcurrentQueue(packet.Blocking)
	cfg := &netio.UDPReceiverConfig{BindAddress: bind, MulticastInterface: recvIface, ReuseAddress: recvReuse}
	add := netio.NewAddUDPReceiverPort(cfg, sink)
	if !nl.ScheduleAndWait(add) {
		return fmt.Errorf("open receiver on %s: %w", bind, add.Err())
	}
	current.log.Info().Stringer("bind", cfg.BindAddress).Log("receiving")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		for sig := range signals {
			if sig != syscall.SIGHUP {
				sink.Drain()
				return
			}
			if err := current.store.Reload(); err != nil {
				current.log.Warning().Err(err).Log("config reload failed")
			}
		}
	}()

	out := cmd.OutOrStdout()
	for n := 0; recvCount == 0 || n < recvCount; n++ {
		pkt, err := sink.Read()
		if errors.Is(err, api.ErrQueueDrained) {
			break
		}
		if err != nil {
			return err
		}
		u := pkt.UDP()
		fmt.Fprintf(out, "%s %s -> %s %d bytes %q\n",
			u.QueueTimestamp.Format("15:04:05.000000"), u.SrcAddr, u.DstAddr, len(pkt.Data()), pkt.Data())
		pkt.Release()
	}

	if !nl.ScheduleAndWait(netio.NewRemovePort(add.Handle())) {
		return fmt.Errorf("close receiver on %s", cfg.BindAddress)
	}
	return nil
}
