package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/netio"
	"github.com/momentics/hioload-netio/packet"
)

func init() {
	udpSendCmd.Flags().StringVar(&sendBind, "bind", "0.0.0.0:0", "local address, host:port")
	udpSendCmd.Flags().StringVar(&sendTo, "to", "", "destination, host:port or endpoint URI")
	udpSendCmd.Flags().IntVar(&sendCount, "count", 1, "number of datagrams")
	udpSendCmd.Flags().StringVar(&sendPayload, "payload", "hello", "datagram payload")
	udpSendCmd.Flags().DurationVar(&sendInterval, "interval", 0, "pause between datagrams")
	udpSendCmd.Flags().BoolVar(&sendNonBlocking, "non-blocking", true, "send from the caller goroutine when possible")
	_ = udpSendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(udpSendCmd)
}

var (
	sendBind        string
	sendTo          string
	sendCount       int
	sendPayload     string
	sendInterval    time.Duration
	sendNonBlocking bool
)

var udpSendCmd = &cobra.Command{
	Use:   "udp-send",
	Short: "Send datagrams",
	RunE:  runUDPSend,
}

func runUDPSend(cmd *cobra.Command, _ []string) error {
	bind, err := address.ParseHostPort(sendBind)
	if err != nil {
		return err
	}
	nl, packets, err := current.newEngine()
	if err != nil {
		return err
	}
	defer nl.Close()

	dst, err := destination(nl, sendTo)
	if err != nil {
		return err
	}

	cfg := &netio.UDPSenderConfig{BindAddress: bind, NonBlockingEnabled: sendNonBlocking}
	add := netio.NewAddUDPSenderPort(cfg)
	if !nl.ScheduleAndWait(add) {
		return fmt.Errorf("open sender on %s: %w", bind, add.Err())
	}
	w := add.Writer()

	for i := 0; i < sendCount; i++ {
		pkt := packets.NewPacket()
		if pkt == nil {
			return fmt.Errorf("packet pool exhausted after %d datagrams", i)
		}
		pkt.SetUDP(packet.UDP{DstAddr: dst})
		pkt.SetData([]byte(sendPayload))
		if err := w.Write(pkt); err != nil {
			return err
		}
		if sendInterval > 0 {
			time.Sleep(sendInterval)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d datagrams %s -> %s\n", sendCount, cfg.BindAddress, dst)

	if !nl.ScheduleAndWait(netio.NewRemovePort(add.Handle())) {
		return fmt.Errorf("close sender on %s", cfg.BindAddress)
	}
	return nil
}

// destination accepts host:port literals and endpoint URIs.
func destination(nl *netio.NetworkLoop, s string) (address.SocketAddr, error) {
	if a, err := address.ParseHostPort(s); err == nil {
		return a, nil
	}
	uri, err := address.ParseEndpointURI(s)
	if err != nil {
		return address.SocketAddr{}, err
	}
	task := netio.NewResolveEndpointAddress(uri)
	if !nl.ScheduleAndWait(task) {
		return address.SocketAddr{}, fmt.Errorf("resolve %s: %w", uri, task.Err())
	}
	return task.Address(), nil
}
