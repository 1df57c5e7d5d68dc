// sensor
// Simulated sensor device runtime driving one DevEUI's cooperative cycle
// against a Bridge over HTTP, mirroring the constrained-device test tool
// the property controller ships for exercising its own protocol surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/spf13/cobra"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/sensorrt"
	"github.com/iotaledger/meter-bridge/internal/sensorrt/transport"
	"github.com/iotaledger/meter-bridge/internal/walletio"
)

var (
	nodeURL            string
	bridgeURL          string
	walletFile         string
	walletPassword     string
	stateFile          string
	subscriptionLink   string
	filesToSend        []string
	tickInterval       time.Duration

	rootCmd = &cobra.Command{
		Use:   "sensor",
		Short: "Simulated LoRaWAN sensor device",
		Long:  "Drives one device's fetch-command/execute/confirm cycle against a Bridge, standing in for constrained sensor hardware.",
		RunE:  runSensor,
	}
)

func init() {
	rootCmd.Flags().StringVar(&nodeURL, "node", "DEADBEEF00000001", "This device's DevEUI")
	rootCmd.Flags().StringVar(&bridgeURL, "bridge-url", "http://localhost:8080", "Bridge base URL")
	rootCmd.Flags().StringVar(&walletFile, "wallet-file", "", "Wallet seed file (empty uses the insecure development wallet)")
	rootCmd.Flags().StringVar(&walletPassword, "wallet-password", "", "Wallet serialization password")
	rootCmd.Flags().StringVar(&stateFile, "state-file", "", "Local channel-state persistence file (defaults to <node>.state)")
	rootCmd.Flags().StringVarP(&subscriptionLink, "subscription-link", "s", "", "Subscribe to the channel at this announcement link before ticking")
	rootCmd.Flags().StringSliceVarP(&filesToSend, "files-to-send", "f", nil, "Message payload files to send once subscribed")
	rootCmd.Flags().DurationVar(&tickInterval, "tick-interval", 5*time.Second, "Delay between cooperative-cycle ticks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSensor(cmd *cobra.Command, args []string) error {
	opts := slogcolor.DefaultOptions
	opts.Level = slog.LevelInfo
	log := slog.New(slogcolor.NewHandler(os.Stderr, opts))
	slog.SetDefault(log)

	var wallet walletio.Wallet
	if walletFile != "" {
		w, err := walletio.Load(walletFile, walletPassword)
		if err != nil {
			return fmt.Errorf("sensor: load wallet: %w", err)
		}
		wallet = w
	} else {
		log.Warn("sensor: no wallet file given, using the insecure development wallet")
		wallet = &walletio.DummyWallet{}
	}
	log.Info("sensor: wallet loaded", "init_count", wallet.InitializationCount())

	if stateFile == "" {
		stateFile = nodeURL + ".state"
	}

	// The channel-cryptography library is an out-of-scope external
	// collaborator; the fake in-memory factory stands in so this tool can
	// exercise the rest of the protocol surface end to end.
	factory := channel.NewFakeFactory()
	mgr := channel.New(factory, func(blob []byte, initCount uint32) error {
		return persistState(stateFile, blob, initCount)
	})

	t := transport.NewHTTPTransport(transport.DefaultHTTPConfig(bridgeURL, nodeURL))
	defer t.Close()

	rt := sensorrt.New(nodeURL, t, mgr, log)

	ctx := context.Background()

	if subscriptionLink != "" {
		link, pubKey, err := mgr.Subscribe(ctx, subscriptionLink)
		if err != nil {
			return fmt.Errorf("sensor: subscribe to %q: %w", subscriptionLink, err)
		}
		log.Info("sensor: subscribed", "link", link, "public_key", pubKey)
	}

	if len(filesToSend) > 0 {
		for _, path := range filesToSend {
			payload, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("sensor: read payload %q: %w", path, err)
			}
			link, err := mgr.SendSignedPacket(ctx, payload)
			if err != nil {
				return fmt.Errorf("sensor: send %q: %w", path, err)
			}
			log.Info("sensor: sent message", "file", path, "link", link)
		}
		return nil
	}

	log.Info("sensor: starting cooperative cycle", "dev_eui", nodeURL, "bridge_url", bridgeURL, "tick_interval", tickInterval)
	for {
		if err := rt.Tick(ctx); err != nil {
			log.Error("sensor: tick failed", "error", err)
		}
		time.Sleep(tickInterval)
	}
}

// persistState mirrors the sensor's own client-side state persistence: a
// small JSON sidecar file tracking the channel's exported blob and
// initialization counter, independent of the Bridge's server-side storage.
type persistedState struct {
	StateBlob []byte `json:"state_blob"`
	InitCount uint32 `json:"init_count"`
}

func persistState(path string, blob []byte, initCount uint32) error {
	data, err := json.Marshal(persistedState{StateBlob: blob, InitCount: initCount})
	if err != nil {
		return fmt.Errorf("sensor: marshal state: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
