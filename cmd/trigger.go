// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/satcam/internal/can"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/netstack"
)

var sendTriggerCmd = &cobra.Command{
	Use:   "send-trigger",
	Short: "Send a capture trigger packet, acting as a ground node",
	Long: `Send one CSP capture trigger to the camera node.

Examples:
  satcam send-trigger --via udp --remote 127.0.0.1:9600
  satcam send-trigger --via can --device can0 --dst 0x1C1F --port 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, err := openTriggerInterface(trigger)
		if err != nil {
			return err
		}
		defer iface.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), trigger.timeout)
		defer cancel()
		return runSendTrigger(ctx, iface, trigger, cmd.OutOrStdout())
	},
}

type triggerOptions struct {
	via     string
	device  string
	listen  string
	remote  string
	src     uint16
	dst     uint16
	port    uint8
	timeout time.Duration
}

var trigger triggerOptions

func init() {
	f := sendTriggerCmd.Flags()
	f.StringVar(&trigger.via, "via", "udp", "link to send on: udp | can")
	f.StringVar(&trigger.device, "device", "can0", "SocketCAN device for --via can")
	f.StringVar(&trigger.listen, "listen", ":0", "local UDP address for --via udp")
	f.StringVar(&trigger.remote, "remote", "127.0.0.1:9600", "daemon UDP address for --via udp")
	f.Uint16Var(&trigger.src, "src", 0x1C3F, "source CSP address")
	f.Uint16Var(&trigger.dst, "dst", 0x1C1F, "camera CSP address")
	f.Uint8Var(&trigger.port, "port", 10, "destination port (must not be a service port)")
	f.DurationVar(&trigger.timeout, "timeout", 2*time.Second, "send timeout")
}

func openTriggerInterface(o triggerOptions) (netstack.Interface, error) {
	switch o.via {
	case "udp":
		return netstack.ListenUDP(o.listen, o.remote, 0)
	case "can":
		bus, err := can.DialSocketCAN(o.device)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", o.device, err)
		}
		iface, err := netstack.NewCANInterface(bus, netstack.CANOptions{Address: o.src})
		if err != nil {
			bus.Close()
			return nil, err
		}
		return iface, nil
	default:
		return nil, fmt.Errorf("unknown link %q (want udp or can)", o.via)
	}
}

func runSendTrigger(ctx context.Context, iface netstack.Interface, o triggerOptions, out io.Writer) error {
	if o.port <= csp.LastServicePort {
		return fmt.Errorf("port %d is a service port", o.port)
	}
	p := csp.NewTrigger(o.src, o.dst, o.port)
	if err := iface.Send(ctx, p); err != nil {
		return fmt.Errorf("failed to send trigger: %w", err)
	}
	fmt.Fprintf(out, "✓ Trigger sent on %s: %s\n", iface.Name(), p)
	return nil
}
