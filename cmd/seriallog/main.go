package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seriallog/internal/capture"
	"seriallog/internal/config"
	"seriallog/internal/console"
	"seriallog/internal/keypress"
	"seriallog/internal/serialchan"
	"seriallog/pkg/escape"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	portName    string
	baudRate    int
	readTimeout time.Duration
	logFile     string
	appendLog   bool
	encoding    string
	fakeSerial  bool
	noTimestamp bool
	debug       bool
)

var rootCmd = &cobra.Command{
	Use:   "seriallog",
	Short: "Serial Logger - capture a serial port to console and file",
	Long: `Serial Logger logs from a serial port set by name. The serial stream is
logged to the console. Writing the stream to a file is an option. A fake serial
stream is an option too and is typically useful for development or testing.
Hit any key to quit.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture a serial port",
	Example: `  seriallog run -p /dev/ttyUSB0
  seriallog run -p COM1 -l serial.txt
  seriallog run --fake`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runCapture(cfg)
	},
}

var portsCmd = &cobra.Command{
	Use:          "ports",
	Short:        "List serial ports",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialchan.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(os.Stderr, "No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:          "check PORT",
	Short:        "Check if a serial port is available",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := serialchan.CheckPort(args[0]); err != nil {
			return err
		}
		fmt.Printf("Port %s is available.\n", args[0])
		return nil
	},
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.BaudRate = baudRate
	}
	if flags.Changed("timeout") {
		cfg.SetReadTimeout(readTimeout)
	}
	if flags.Changed("logfile") {
		cfg.Log.File = logFile
	}
	if flags.Changed("append") {
		cfg.Log.Append = appendLog
	}
	if flags.Changed("encoding") {
		cfg.Log.Encoding = encoding
	}
	if flags.Changed("no-timestamp") {
		cfg.SetTimestamp(!noTimestamp)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !fakeSerial && cfg.Serial.Port == "" {
		return nil, errors.New("no serial port given, use --port or --fake")
	}
	return cfg, nil
}

func runCapture(cfg *config.Config) error {
	raw := keypress.IsTerminal(os.Stdin)
	var logOut io.Writer = os.Stderr
	if raw {
		logOut = console.CRLFWriter{W: os.Stderr}
	}
	setupLogging(logOut, debug)

	var ch serialchan.Channel
	if fakeSerial {
		ch = serialchan.NewFake(serialchan.DemoStream, serialchan.WithReadTimeout(cfg.ReadTimeout()))
	} else {
		if err := serialchan.CheckPort(cfg.Serial.Port); err != nil {
			return err
		}
		ch = serialchan.NewPort(cfg.Serial.Port, serialchan.PortConfig{
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.ReadTimeout(),
		})
	}

	fileCodec, err := escape.Lookup(cfg.Log.Encoding)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if raw {
		restore, err := keypress.MakeRaw(os.Stdin)
		if err != nil {
			return err
		}
		defer func() { _ = restore() }()

		go func() {
			if _, err := keypress.WaitForKey(ctx, os.Stdin); err == nil {
				slog.Info("Key pressed, quitting")
				stop()
			}
		}()
		slog.Info("Stop by entering a key")
	}

	slog.Info("Serial logger started",
		"port", cfg.Serial.Port,
		"fake", fakeSerial,
		"baud_rate", cfg.Serial.BaudRate,
		"read_timeout", cfg.ReadTimeout(),
		"logfile", cfg.Log.File,
		"timestamp", cfg.Timestamp())

	return capture.Run(ctx, capture.Options{
		Channel:   ch,
		LogFile:   cfg.Log.File,
		Append:    cfg.Log.Append,
		FileCodec: fileCodec,
		Timestamp: cfg.Timestamp(),
		Console:   os.Stdout,
		CRLF:      raw,
	})
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file (flags override its values)")
	runCmd.Flags().StringVarP(&portName, "port", "p", "", "Serial port to log from, for example /dev/ttyUSB0 or COM1")
	runCmd.Flags().IntVarP(&baudRate, "baud", "b", config.DefaultBaudRate, "Baud rate")
	runCmd.Flags().DurationVarP(&readTimeout, "timeout", "t", config.DefaultReadTimeout, "Serial read timeout")
	runCmd.Flags().StringVarP(&logFile, "logfile", "l", "", "Also write the log to this file")
	runCmd.Flags().BoolVar(&appendLog, "append", false, "Append to the log file instead of truncating it")
	runCmd.Flags().StringVar(&encoding, "encoding", config.DefaultEncoding, "Log file encoding")
	runCmd.Flags().BoolVarP(&fakeSerial, "fake", "f", false, "Replay a built-in fake serial stream instead of a port")
	runCmd.Flags().BoolVar(&noTimestamp, "no-timestamp", false, "Do not prefix lines with the elapsed time")
	runCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Set debug log level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
