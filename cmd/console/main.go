// console
// Management console: the channel's Author-side operator tool, standing
// in for whatever utility back-office system owns the ledger channel a
// batch of sensors report into.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MatusOllah/slogcolor"
	"github.com/spf13/cobra"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/walletio"
)

var (
	stateFile          string
	walletFile         string
	walletPassword     string
	createChannel      bool
	registerKeyload    bool
	subscriptionLink   string
	subscriptionPubKey string
	clearClientState   bool

	rootCmd = &cobra.Command{
		Use:   "console",
		Short: "Ledger channel management console",
		Long:  "Author-side operator tool: create channels and admit subscribers.",
		RunE:  runConsole,
	}
)

func init() {
	rootCmd.Flags().StringVar(&stateFile, "state-file", "console.state", "Local Author channel-state persistence file")
	rootCmd.Flags().StringVar(&walletFile, "wallet-file", "", "Wallet seed file (empty uses the insecure development wallet)")
	rootCmd.Flags().StringVar(&walletPassword, "wallet-password", "", "Wallet serialization password")
	rootCmd.Flags().BoolVarP(&createChannel, "create-channel", "c", false, "Create (announce) the channel; the announcement link is logged to console")
	rootCmd.Flags().StringVarP(&subscriptionLink, "subscription-link", "l", "", "Subscription message link reported by a sensor")
	rootCmd.Flags().StringVarP(&subscriptionPubKey, "subscription-pub-key", "k", "", "Public key reported by a sensor")
	rootCmd.Flags().BoolVar(&registerKeyload, "register-keyload-msg", false, "Admit the sensor named by --subscription-link/--subscription-pub-key")
	rootCmd.Flags().BoolVar(&clearClientState, "clear-client-state", false, "Discard the local console state file and start a fresh channel")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type consoleState struct {
	StateBlob []byte `json:"state_blob"`
}

func runConsole(cmd *cobra.Command, args []string) error {
	opts := slogcolor.DefaultOptions
	opts.Level = slog.LevelInfo
	log := slog.New(slogcolor.NewHandler(os.Stderr, opts))
	slog.SetDefault(log)

	if clearClientState {
		if err := os.Remove(stateFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("console: clear client state: %w", err)
		}
		log.Info("console: local client state cleared", "state_file", stateFile)
		return nil
	}

	var wallet walletio.Wallet
	if walletFile != "" {
		w, err := walletio.Load(walletFile, walletPassword)
		if err != nil {
			return fmt.Errorf("console: load wallet: %w", err)
		}
		wallet = w
	} else {
		log.Warn("console: no wallet file given, using the insecure development wallet")
		wallet = &walletio.DummyWallet{}
	}
	log.Info("console: wallet loaded", "init_count", wallet.InitializationCount())

	factory := channel.NewFakeFactory()
	ctx := context.Background()

	var mgr *channel.Manager
	persist := func(blob []byte, initCount uint32) error {
		return persistConsoleState(stateFile, blob)
	}

	if prior, err := loadConsoleState(stateFile); err == nil && !createChannel {
		mgr, err = channel.Restore(ctx, factory, persist, prior.StateBlob)
		if err != nil {
			return fmt.Errorf("console: restore channel state: %w", err)
		}
		log.Info("console: restored local channel state", "state_file", stateFile, "prev_link", mgr.PrevLink(), "init_count", mgr.InitCount())
	} else {
		mgr = channel.New(factory, persist)
	}

	if createChannel {
		link, err := mgr.Announce(ctx)
		if err != nil {
			return fmt.Errorf("console: create channel: %w", err)
		}
		if err := mgr.Flush(ctx); err != nil {
			return fmt.Errorf("console: persist state: %w", err)
		}
		log.Info("console: channel created", "announcement_link", link)
		return nil
	}

	if registerKeyload {
		if subscriptionPubKey == "" {
			return fmt.Errorf("console: --subscription-pub-key is required alongside --register-keyload-msg")
		}
		keyloadLink, err := mgr.AddSubscribers(ctx, []string{subscriptionPubKey})
		if err != nil {
			return fmt.Errorf("console: register keyload message: %w", err)
		}
		log.Info("console: subscriber admitted", "subscription_link", subscriptionLink, "keyload_link", keyloadLink)
		return nil
	}

	return fmt.Errorf("console: specify --create-channel, --register-keyload-msg, or --clear-client-state")
}

func loadConsoleState(path string) (*consoleState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s consoleState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("console: parse state file %q: %w", path, err)
	}
	return &s, nil
}

func persistConsoleState(path string, blob []byte) error {
	data, err := json.Marshal(consoleState{StateBlob: blob})
	if err != nil {
		return fmt.Errorf("console: marshal state: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
