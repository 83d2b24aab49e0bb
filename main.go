package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/capture"
	"github.com/bosley/voiceguard/config"
	"github.com/bosley/voiceguard/console"
	"github.com/bosley/voiceguard/device"
	"github.com/bosley/voiceguard/metrics"
	"github.com/bosley/voiceguard/predict"
	"github.com/bosley/voiceguard/session"
	"github.com/bosley/voiceguard/ui"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if cfg.Play != "" {
		if err := device.Play(cfg.Play, ctx.Done()); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.ListDevices {
		devices, err := device.ListInputDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, d := range devices {
			fmt.Printf("[%d] %s\n", i, d.Name)
			fmt.Printf("    Max Input Channels: %d\n", d.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", d.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	client, err := predict.NewClient(predict.Config{
		BaseURL: cfg.Endpoint,
		Timeout: cfg.Timeout,
		Metrics: m,
	})
	if err != nil {
		slog.Error("Failed to create prediction client", "error", err)
		os.Exit(1)
	}
	slog.Debug("Prediction endpoint", "url", client.Endpoint())

	ctrl := session.NewController(session.Options{
		Recorder:  capture.NewRecorder(device.NewSource(cfg.DeviceID)),
		Predictor: client,
		Previews:  audio.NewRecordings(cfg.RecordingsDir),
		Metrics:   m,
	})
	defer ctrl.Close()

	term := ui.NewTerminal()
	ctrl.Subscribe(func(s session.State) { term.Show(ui.Render(s)) })

	switch {
	case cfg.HTTPAddr != "":
		err = runConsole(ctx, cfg, ctrl, m)
	case cfg.File != "":
		term.Header()
		err = analyzeFile(ctx, ctrl, cfg.File)
	case cfg.Record:
		term.Header()
		err = recordAndAnalyze(ctx, ctrl, bufio.NewReader(os.Stdin))
	default:
		term.Header()
		err = interactive(ctx, ctrl, bufio.NewReader(os.Stdin))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
	slog.Debug("Program exiting")
}

func runConsole(ctx context.Context, cfg *config.Config, ctrl *session.Controller, m *metrics.Metrics) error {
	c, err := console.New(console.Config{
		HTTPAddr:    cfg.HTTPAddr,
		WatchDir:    cfg.WatchDir,
		AutoAnalyze: cfg.AutoAnalyze,
		Gatherer:    prometheus.DefaultGatherer,
		Metrics:     m,
	}, ctrl)
	if err != nil {
		slog.Error("Failed to initialize console", "error", err)
		return err
	}

	// Ensure the console is stopped on shutdown
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Stop(stopCtx); err != nil {
			slog.Error("Failed to stop console", "error", err)
		}
	}()

	if err := c.Start(ctx); err != nil {
		slog.Error("Console failed", "error", err)
		return err
	}
	return nil
}

func analyzeFile(ctx context.Context, ctrl *session.Controller, path string) error {
	if _, err := ctrl.SelectPath(path); err != nil {
		slog.Error("Failed to load audio file", "error", err)
		return err
	}
	_, err := ctrl.Analyze(ctx)
	return err
}

func recordAndAnalyze(ctx context.Context, ctrl *session.Controller, in *bufio.Reader) error {
	fmt.Println("Press Enter to start recording...")
	if _, err := in.ReadString('\n'); err != nil {
		return err
	}
	if err := ctrl.StartRecording(ctx); err != nil {
		return err
	}

	fmt.Println("Press Enter to stop recording...")
	if _, err := in.ReadString('\n'); err != nil && err != io.EOF {
		return err
	}
	if _, err := ctrl.StopRecording(); err != nil {
		return err
	}

	_, err := ctrl.Analyze(ctx)
	return err
}

const interactiveHelp = `Commands:
  r          start / stop recording (Enter also stops)
  f <path>   select a .wav file
  a          analyze the selected audio
  p          play the last recording
  q          quit`

// interactive reads one command per line until q, EOF or ctx is done.
func interactive(ctx context.Context, ctrl *session.Controller, in *bufio.Reader) error {
	fmt.Println(interactiveHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
			if ctrl.State().Phase == session.PhaseRecording {
				ctrl.StopRecording()
			}
		case "r":
			if ctrl.State().Phase == session.PhaseRecording {
				ctrl.StopRecording()
			} else {
				ctrl.StartRecording(ctx)
			}
		case "f":
			if arg == "" {
				fmt.Println("usage: f <path>")
				continue
			}
			if _, err := ctrl.SelectPath(strings.TrimSpace(arg)); err != nil {
				fmt.Println(err)
			}
		case "a":
			// Analysis runs in the background so a newer one can replace it.
			go ctrl.Analyze(ctx)
		case "p":
			preview := ctrl.State().Preview
			if preview == "" {
				fmt.Println("No recording to play")
				continue
			}
			if err := device.Play(preview, ctx.Done()); err != nil {
				slog.Error("Failed to play recording", "error", err)
			}
		case "q", "quit", "exit":
			return nil
		default:
			fmt.Println(interactiveHelp)
		}
	}
}
