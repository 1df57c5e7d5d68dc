// connector
// App-server-connector mock: stands in for the LoRaWAN network/application
// server that a real ESP32 sensor's radio stack hands uplinks to - accepts
// raw tunnelled-request bytes over a TCP socket and forwards them to the
// Bridge's lorawan-rest endpoint, relaying the response back as a downlink.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	bridgeURL  string
	devEUI     string

	rootCmd = &cobra.Command{
		Use:   "connector",
		Short: "LoRaWAN app-server connector mock",
		Long:  "Receives binary tunnelled packages from a sensor over a TCP socket and forwards them to the Bridge's lorawan-rest API, relaying the response back as a downlink.",
		RunE:  runConnector,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&listenAddr, "listener-ip-address", "l", "0.0.0.0:50001", "IP address and port to listen on for sensor uplinks")
	rootCmd.Flags().StringVarP(&bridgeURL, "bridge-url", "b", "http://localhost:8080", "The Bridge URL to forward tunnelled packages to")
	rootCmd.Flags().StringVar(&devEUI, "dev-eui", "", "DevEUI this connector instance speaks for (one connector per simulated radio link)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConnector(cmd *cobra.Command, args []string) error {
	opts := slogcolor.DefaultOptions
	opts.Level = slog.LevelInfo
	log := slog.New(slogcolor.NewHandler(os.Stderr, opts))
	slog.SetDefault(log)

	if devEUI == "" {
		return fmt.Errorf("connector: --dev-eui is required")
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("connector: listen on %q: %w", listenAddr, err)
	}
	defer ln.Close()

	log.Info("connector: listening for sensor uplinks", "addr", listenAddr, "bridge_url", bridgeURL, "dev_eui", devEUI)

	client := &http.Client{Timeout: 30 * time.Second}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("connector: accept: %w", err)
		}
		go handleUplink(conn, client, log)
	}
}

// handleUplink services exactly one tunnelled request/response round trip
// per connection, matching how a real radio boundary hands one frame at a
// time to its application-server peer.
func handleUplink(conn net.Conn, client *http.Client, log *slog.Logger) {
	defer conn.Close()

	payload, err := readFrame(conn)
	if err != nil {
		log.Error("connector: read uplink frame", "error", err)
		return
	}

	resp, err := forwardToBridge(client, payload)
	if err != nil {
		log.Error("connector: forward to bridge", "error", err)
		return
	}

	if err := writeFrame(conn, resp); err != nil {
		log.Error("connector: write downlink frame", "error", err)
	}
}

func forwardToBridge(client *http.Client, payload []byte) ([]byte, error) {
	url := bridgeURL + "/lorawan-rest/binary_request?deveui=" + devEUI
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return body, fmt.Errorf("bridge responded %d", resp.StatusCode)
	}
	return body, nil
}

// readFrame/writeFrame use the same 4-byte little-endian length prefix the
// wire package uses for its own variable-length fields, so a raw TCP socket
// frames tunnelled packages the same way every other wire value is framed.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}
