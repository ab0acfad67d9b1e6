package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/opd-ai/streamaudio"
	"github.com/opd-ai/streamaudio/config"
	"github.com/opd-ai/streamaudio/metrics"
	"github.com/opd-ai/streamaudio/notify"
)

const statsInterval = time.Second

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to YAML config file",
		EnvVars: []string{"STREAMAUDIO_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "remote",
		Usage:   "sender address (host:port)",
		EnvVars: []string{"STREAMAUDIO_REMOTE"},
	},
	&cli.StringFlag{
		Name:  "local",
		Usage: "local UDP address to bind",
	},
	&cli.StringFlag{
		Name:  "codec",
		Usage: "payload codec: opus, pcm_s16le or pcm_f32le",
	},
	&cli.StringFlag{
		Name:  "framing",
		Usage: "datagram framing: counter or rtp",
	},
	&cli.StringFlag{
		Name:  "wav",
		Usage: "write played audio to `file`",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "trace, debug, info, warn or error",
	},
	&cli.StringFlag{
		Name:  "log-format",
		Usage: "text or json",
	},
	&cli.StringFlag{
		Name:    "metrics-addr",
		Usage:   "serve Prometheus metrics on this address",
		EnvVars: []string{"STREAMAUDIO_METRICS_ADDR"},
	},
	&cli.DurationFlag{
		Name:  "duration",
		Usage: "stop after this long (0 plays until interrupted)",
	},
}

func main() {
	app := &cli.App{
		Name:        "streamaudio",
		Usage:       "Receive and play a UDP audio stream",
		Description: "run without subcommands to start playback",
		Flags:       baseFlags,
		Action:      play,
		Commands: []*cli.Command{
			{
				Name:   "print-config",
				Usage:  "print the effective configuration as YAML",
				Action: printConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Context) (*config.Config, error) {
	conf := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}

	set := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	set("remote", &conf.RemoteAddr)
	set("local", &conf.LocalAddr)
	set("codec", &conf.Codec)
	set("framing", &conf.Framing)
	set("log-level", &conf.LogLevel)
	set("log-format", &conf.LogFormat)
	set("metrics-addr", &conf.MetricsAddr)
	if c.IsSet("wav") {
		conf.Sink.Backend = config.BackendClock
		conf.Sink.WAVPath = c.String("wav")
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := initLogger(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func initLogger(conf *config.Config) error {
	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if conf.LogFormat == config.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func printConfig(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	out, err := conf.Marshal()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(out)
	return err
}

func play(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	if conf.RemoteAddr == "" {
		return errors.New("no sender address, set --remote or remote_addr")
	}

	rx, err := streamaudio.New(conf, notify.CallbackFunc(func(ms int64) {
		logrus.WithFields(logrus.Fields{
			"function": "play",
			"delay_ms": ms,
		}).Info("Delay changed")
	}))
	if err != nil {
		return err
	}
	defer rx.Close()

	if conf.MetricsAddr != "" {
		metrics.Init(rx.ID())
		go serveMetrics(conf.MetricsAddr)
	}

	if err := rx.Play(conf.RemoteAddr); err != nil {
		sig, msg := streamaudio.Signal(err)
		logrus.WithFields(logrus.Fields{
			"function": "play",
			"signal":   sig.String(),
			"error":    msg,
		}).Error("Failed to start playback")
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var deadline <-chan time.Time
	if d := c.Duration("duration"); d > 0 {
		deadline = time.After(d)
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			logrus.WithFields(logrus.Fields{
				"function": "play",
				"signal":   sig.String(),
			}).Info("Exit requested, shutting down")
			return rx.Stop()
		case <-deadline:
			logrus.WithFields(logrus.Fields{
				"function": "play",
			}).Info("Duration elapsed, shutting down")
			return rx.Stop()
		case <-ticker.C:
			stats, err := rx.Stats()
			if err != nil {
				continue
			}
			metrics.ObserveBuffer(stats.Buffer)
			logrus.WithFields(logrus.Fields{
				"function":  "play",
				"queue_len": stats.Buffer.Len,
				"missing":   stats.Buffer.Missing,
				"underruns": stats.Buffer.Underruns,
				"avg_delay": stats.Buffer.AvgDelay,
				"datagrams": stats.Transport.Datagrams,
				"wire_lost": stats.Transport.WireLost,
			}).Debug("Session stats")
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logrus.WithFields(logrus.Fields{
		"function": "serveMetrics",
		"addr":     addr,
	}).Info("Serving metrics")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "serveMetrics",
			"error":    err.Error(),
		}).Error("Metrics server stopped")
	}
}
