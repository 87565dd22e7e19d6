// ABOUTME: Audio loopback check for a single machine
// ABOUTME: Feeds the microphone back to the speaker through the packet pipeline; space toggles capture
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/hactar-dev/hactar-sim/internal/logging"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
	"github.com/hactar-dev/hactar-sim/pkg/audio/backend"
	"github.com/hactar-dev/hactar-sim/pkg/audio/packet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	runtime.LockOSThread()
}

var (
	backendName string
	latencyMs   int
	frameMs     int
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:           "feedback",
	Short:         "Play the microphone back through the speaker with a fixed delay",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&backendName, "backend", "malgo", "audio backend: malgo, oto or null")
	rootCmd.Flags().IntVar(&latencyMs, "latency-ms", 150, "delay between input and output")
	rootCmd.Flags().IntVar(&frameMs, "frame-ms", 10, "packet duration")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, error or none")
}

func run() error {
	logger, err := logging.New(logLevel, "")
	if err != nil {
		return err
	}
	defer logger.Sync()

	host, err := backend.New(backendName, backend.DefaultNullConfig(), logger)
	if err != nil {
		return err
	}
	defer host.Close()

	input, err := host.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("failed to find input device: %w", err)
	}
	output, err := host.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("failed to find output device: %w", err)
	}

	// same format both ways
	format := input.Format()
	queue := packet.NewQueue[audio.Packet]()
	packetizer := packet.NewPacketizer(audio.PacketLength(format, frameMs), queue)
	depacketizer := packet.NewDepacketizer(queue, format.SampleRate*latencyMs/1000*format.Channels)

	onError := func(err error) {
		logger.Warn("an error occurred on stream", zap.Error(err))
	}

	capture, err := input.BuildCaptureStream(format, packetizer.Write, onError)
	if err != nil {
		return fmt.Errorf("failed to build input stream: %w", err)
	}
	defer capture.Close()

	playback, err := output.BuildPlaybackStream(format, func(out []float32) { depacketizer.Fill(out) }, onError)
	if err != nil {
		return fmt.Errorf("failed to build output stream: %w", err)
	}
	defer playback.Close()

	if err := playback.Play(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	fmt.Printf("%s -> %s, %d Hz, %d ch, %d ms delay\n", input.Name(), output.Name(), format.SampleRate, format.Channels, latencyMs)
	fmt.Println("Press space then enter to start or stop recording, ctrl+c to quit")

	keys := make(chan byte)
	go func() {
		r := bufio.NewReader(os.Stdin)
		for {
			b, err := r.ReadByte()
			if err != nil {
				close(keys)
				return
			}
			keys <- b
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	recording := false
	for {
		select {
		case <-sig:
			logger.Info("stopping",
				zap.Uint64("captured", packetizer.Packets()),
				zap.Uint64("played", depacketizer.Played()),
				zap.Uint64("underrun", depacketizer.Underrun()))
			return nil

		case b, ok := <-keys:
			if !ok {
				return nil
			}
			if b != ' ' {
				continue
			}

			recording = !recording
			if recording {
				err = capture.Play()
			} else {
				err = capture.Pause()
			}
			if err != nil {
				return fmt.Errorf("failed to toggle input stream: %w", err)
			}
			logger.Info("recording", zap.Bool("on", recording))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
