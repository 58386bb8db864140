// Package commands implements the homaecho CLI: a small demonstration
// program that drives a client and server Session over pkg/homa/simnet
// inside a single process, printing round-trip results as it goes. It is
// built the way the teacher's cmd/skywire-visor/commands/root.go builds
// its CLI: cobra for the command tree, viper for config-file overrides,
// go-homedir for locating the default config path, and fatih/color for
// terminal-friendly status output.
package commands

import (
	"fmt"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skycoin/homatransport/pkg/homa"
	"github.com/skycoin/homatransport/pkg/homa/simnet"
)

var cfgFile string

// RootCmd is the entry point for the homaecho binary.
var RootCmd = &cobra.Command{
	Use:   "homaecho",
	Short: "Drive a demonstration Homa RPC exchange over a simulated network",
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.homaecho.yaml)")
	RootCmd.AddCommand(demoCmd)

	demoCmd.Flags().Int("requests", 5, "number of echo RPCs to send")
	demoCmd.Flags().Int("payload", 2048, "request/response payload size in bytes")
	demoCmd.Flags().Duration("latency", 2*time.Millisecond, "simulated one-way network latency")
	demoCmd.Flags().Float64("loss", 0.0, "independent per-packet loss probability")
	demoCmd.Flags().Int("mtu", 1400, "simulated driver MTU")
	_ = viper.BindPFlags(demoCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".homaecho")
		}
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs RootCmd, printing any error in red and exiting non-zero.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a self-contained client/server echo exchange",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	requests := viper.GetInt("requests")
	payloadSize := viper.GetInt("payload")
	latency := viper.GetDuration("latency")
	loss := viper.GetFloat64("loss")
	mtu := viper.GetInt("mtu")

	network := simnet.NewNetwork(latency, latency/4, loss)
	serverDriver := network.NewDriver("server", mtu, 8, 10e9)
	clientDriver := network.NewDriver("client", mtu, 8, 10e9)

	serverTransport := homa.NewTransport(serverDriver, homa.DefaultConfig(serverDriver.HighestAvailablePriority()), wallClock, homa.NewClientID())
	serverTransport.SetHandler(func(request []byte, respond func([]byte)) {
		echoed := make([]byte, len(request))
		copy(echoed, request)
		respond(echoed)
	})

	clientTransport := homa.NewTransport(clientDriver, homa.DefaultConfig(clientDriver.HighestAvailablePriority()), wallClock, homa.NewClientID())
	session, err := clientTransport.GetSession("server")
	if err != nil {
		return errors.Wrap(err, "resolving server session")
	}

	done := make(chan error, requests)
	payload := make([]byte, payloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	sent := 0
	for i := 0; i < requests; i++ {
		notifier := homa.NewFuncNotifier(
			func(response []byte) {
				if len(response) != len(payload) {
					done <- errors.Errorf("short echo: got %d bytes, want %d", len(response), len(payload))
					return
				}
				done <- nil
			},
			func(kind homa.FailureKind, err error) {
				done <- errors.Wrapf(err, "rpc failed: %s", kind)
			},
		)
		if _, err := session.SendRequest(payload, notifier); err != nil {
			return errors.Wrap(err, "send request")
		}
		sent++
	}

	deadline := time.Now().Add(5 * time.Second)
	completed := 0
	for completed < sent && time.Now().Before(deadline) {
		now := homa.Cycles(time.Now().UnixNano())
		_ = serverTransport.Poll(now)
		_ = clientTransport.Poll(now)

		select {
		case err := <-done:
			completed++
			if err != nil {
				color.Red("rpc %d/%d failed: %v", completed, sent, err)
			} else {
				color.Green("rpc %d/%d ok", completed, sent)
			}
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if completed < sent {
		return errors.Errorf("only %d/%d rpcs completed before deadline", completed, sent)
	}
	color.Cyan("all %d rpcs completed", sent)
	return nil
}

func wallClock() homa.Cycles { return homa.Cycles(time.Now().UnixNano()) }
