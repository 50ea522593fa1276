package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/config"
	"github.com/jamesrr39/ownmap-paparazzi/control"
	"github.com/jamesrr39/ownmap-paparazzi/paparazzi"
	"github.com/jamesrr39/ownmap-paparazzi/renderjob"
	"github.com/jamesrr39/ownmap-paparazzi/scenecache"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
	"github.com/jamesrr39/ownmap-paparazzi/webservices"
	"github.com/jamesrr39/ownmap-paparazzi/worker"
	"github.com/pkg/profile"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	fetchTimeout    = 30 * time.Second
	shutdownTimeout = 30 * time.Second
	mqttQuiesceMs   = 250
)

var (
	logger     *logpkg.Logger
	verbose    *bool
	configPath *string
)

func main() {
	verbose = kingpin.Flag("v", "verbose logging").Bool()
	configPath = kingpin.Flag("config", "path to a YAML config file").String()

	setupServe()
	setupConsole()
	setupShoot()

	kingpin.Parse()
}

// runAction creates the logger once flags are parsed, and prints the stack of a failed command before kingpin exits
func runAction(run func() errorsx.Error) kingpin.Action {
	return func(ctx *kingpin.ParseContext) error {
		logLevel := logpkg.LogLevelInfo
		if *verbose {
			logLevel = logpkg.LogLevelDebug
		}
		logger = logpkg.NewLogger(os.Stderr, logLevel)

		err := run()
		if err != nil {
			return fmt.Errorf("error: %q\nStack trace:\n%s", err.Error(), err.Stack())
		}
		return nil
	}
}

func loadConfig(fs gofs.Fs) (*config.Config, errorsx.Error) {
	conf, err := config.Load(fs, *configPath)
	if err != nil {
		return nil, err
	}

	err = conf.Paths.ExpandPaths()
	if err != nil {
		return nil, err
	}

	return conf, nil
}

func newFactory(fs gofs.Fs, conf *config.Config) worker.Factory {
	client := &http.Client{Timeout: fetchTimeout}
	cache := scenecache.New(fs, conf.Paths.CacheDir)

	return func(ownerID int) (*paparazzi.Paparazzi, errorsx.Error) {
		logger.Debug("creating render instance %d", ownerID)
		return paparazzi.NewSoftware(logger, client, fs, cache, conf.FetchWorkers, conf.PaparazziOptions())
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

const defaultPort = config.DefaultPort

var addrHelp = fmt.Sprintf(
	`address to serve on. Ex: ':%d' listen on port %d to traffic from anywhere. 'localhost:%d' listen on port %d to traffic from localhost`,
	defaultPort, defaultPort, defaultPort, defaultPort,
)

func setupServe() {
	cmd := kingpin.Command("serve", "serve rendered maps over HTTP")
	addr := cmd.Flag("addr", addrHelp).String()
	workers := cmd.Flag("workers", "amount of render instances. Each renders one request at a time").Int()
	shouldProfile := cmd.Flag("profile", "profile the request performance").Bool()
	shouldTrace := cmd.Flag("trace", "write a trace of every request to the trace dir").Bool()
	maxWait := cmd.Flag("max-wait", "longest time to wait for a view to finish loading").Duration()
	cmd.Action(runAction(func() errorsx.Error {
		fs := gofs.NewOsFs()

		conf, err := loadConfig(fs)
		if err != nil {
			return err
		}

		if *addr != "" {
			conf.Addr = *addr
		}
		if *workers != 0 {
			conf.Workers = *workers
		}
		if *maxWait != 0 {
			conf.MaxWait = *maxWait
		}
		conf.Profile = conf.Profile || *shouldProfile
		conf.Trace = conf.Trace || *shouldTrace

		err = conf.Validate()
		if err != nil {
			return err
		}

		err = conf.Paths.EnsurePaths(fs)
		if err != nil {
			return err
		}

		pool, err := worker.NewPool(logger, conf.Workers, newFactory(fs, conf))
		if err != nil {
			return err
		}

		routerOptions := webservices.RouterOptions{
			ShouldProfile: conf.Profile,
			MaxBodyBytes:  conf.MaxBodyBytes,
			LogRequests:   conf.LogRequests,
		}

		if conf.Trace {
			traceFilePath := filepath.Join(conf.Paths.TraceDir, fmt.Sprintf("trace_%s.pbf", time.Now().Format("2006-01-02__03_04_05")))
			logger.Info("tracing at %q", traceFilePath)

			traceFile, createErr := fs.Create(traceFilePath)
			if createErr != nil {
				pool.Stop()
				return errorsx.Wrap(createErr, "path", traceFilePath)
			}
			defer traceFile.Close()

			routerOptions.Tracer = tracing.NewTracer(traceFile)
		}

		server := httpextra.NewServerWithTimeouts()
		server.Addr = conf.Addr
		server.Handler = webservices.NewRouter(logger, pool, routerOptions)

		ctx, cancel := signalContext()
		defer cancel()

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("about to start serving on %q with %d render instance(s)", conf.Addr, pool.Size())
			serveErr <- server.ListenAndServe()
		}()

		var runErr errorsx.Error
		select {
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = errorsx.Wrap(err, "addr", conf.Addr)
			}
		case <-ctx.Done():
			logger.Info("shutting down")

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()

			err := server.Shutdown(shutdownCtx)
			if err != nil {
				logger.Warn("server didn't shut down cleanly: %s", err)
			}
		}

		stopErr := pool.Stop()
		if runErr != nil {
			return runErr
		}
		return stopErr
	}))
}

func setupConsole() {
	cmd := kingpin.Command("console", "keep one view open and change it with commands from stdin (and an MQTT topic, if configured). Replies are written to stderr, images to stdout")
	broker := cmd.Flag("mqtt-broker", "MQTT broker to take commands from. Ex: tcp://localhost:1883").String()
	noStdin := cmd.Flag("no-stdin", "don't read commands from stdin").Bool()
	cmd.Action(runAction(func() errorsx.Error {
		fs := gofs.NewOsFs()

		conf, err := loadConfig(fs)
		if err != nil {
			return err
		}

		if *broker != "" {
			conf.MQTT.Broker = *broker
		}

		err = conf.Validate()
		if err != nil {
			return err
		}

		err = conf.Paths.EnsurePaths(fs)
		if err != nil {
			return err
		}

		owner, err := worker.NewOwner(logger, 0, newFactory(fs, conf))
		if err != nil {
			return err
		}

		session := control.NewSession(logger, fs, owner)

		signalCtx, cancelSignal := signalContext()
		defer cancelSignal()

		ctx, cancel := context.WithCancel(signalCtx)
		defer cancel()

		var wg sync.WaitGroup
		readersDone := make(chan struct{})

		runReader := func(name string, run func(ctx context.Context) errorsx.Error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := run(ctx)
				if err != nil {
					logger.Error("%s reader stopped: %s\nStack:\n%s", name, err, err.Stack())
				}
			}()
		}

		if !*noStdin {
			replier := control.NewWriterReplier(os.Stderr, os.Stdout)
			runReader("console", control.NewConsoleReader(logger, os.Stdin, session, replier).Run)
		}

		if conf.MQTT.Enabled() {
			client, err := control.ConnectMQTT(logger, control.MQTTConnectOptions{
				Broker:   conf.MQTT.Broker,
				ClientID: conf.MQTT.ClientID,
				Username: conf.MQTT.Username,
				Password: conf.MQTT.Password,
			})
			if err != nil {
				owner.Stop()
				return err
			}
			defer client.Disconnect(mqttQuiesceMs)

			topics := control.MQTTTopics{
				Commands: conf.MQTT.Topics.Commands,
				Replies:  conf.MQTT.Topics.Replies,
				Images:   conf.MQTT.Topics.Images,
			}
			runReader("mqtt", control.NewMQTTReader(logger, client, topics, conf.MQTT.QoS, session).Run)
		}

		go func() {
			wg.Wait()
			close(readersDone)
		}()

		select {
		case <-session.Quit():
		case <-ctx.Done():
		case <-readersDone:
		}

		// stop the readers first, so nothing new is queued while the owner drains
		cancel()
		<-readersDone

		return owner.Stop()
	}))
}

func setupShoot() {
	cmd := kingpin.Command("shoot", "render one image and exit")
	scene := cmd.Flag("scene", "scene file path or URL").Default(viewstate.DefaultScene).String()
	lat := cmd.Flag("lat", "latitude of the center").Float64()
	lon := cmd.Flag("lon", "longitude of the center").Float64()
	zoom := cmd.Flag("zoom", "zoom level").Float64()
	tilt := cmd.Flag("tilt", "tilt, in degrees").Float64()
	rotation := cmd.Flag("rotation", "rotation, in degrees").Float64()
	width := cmd.Flag("width", "width, in points").Default(fmt.Sprintf("%d", viewstate.DefaultWidth)).Int()
	height := cmd.Flag("height", "height, in points").Default(fmt.Sprintf("%d", viewstate.DefaultHeight)).Int()
	density := cmd.Flag("density", "pixels per point").Default("1").Float64()
	outPath := cmd.Flag("out", "file to write the PNG to").Short('o').Required().String()
	shouldProfile := cmd.Flag("profile", "CPU profile the render").Bool()
	cmd.Action(runAction(func() errorsx.Error {
		fs := gofs.NewOsFs()

		conf, err := loadConfig(fs)
		if err != nil {
			return err
		}

		err = conf.Validate()
		if err != nil {
			return err
		}

		err = conf.Paths.EnsurePaths(fs)
		if err != nil {
			return err
		}

		if *shouldProfile {
			defer profile.Start(profile.ProfilePath(conf.Paths.TraceDir), profile.CPUProfile).Stop()
		}

		job := renderjob.NewJob(renderjob.ModeExplicit)
		job.Scene = *scene
		job.Width = *width
		job.Height = *height
		job.Density = viewstate.ClampDensity(*density)
		job.Lat = *lat
		job.Lon = *lon
		job.Zoom = *zoom
		job.Tilt = *tilt
		job.Rotation = *rotation

		owner, err := worker.NewOwner(logger, 0, newFactory(fs, conf))
		if err != nil {
			return err
		}

		var pngBytes []byte
		var processErr errorsx.Error
		err = owner.Do(context.Background(), func(p *paparazzi.Paparazzi) {
			pngBytes, processErr = p.Process(job)
			if processErr == nil {
				status := p.Status()
				if status.LastSettle != nil && !status.LastSettle.Done {
					logger.Warn("view didn't finish loading within %s, the image may be incomplete", conf.MaxWait)
				}
			}
		})
		stopErr := owner.Stop()
		if err != nil {
			return err
		}
		if processErr != nil {
			return processErr
		}
		if stopErr != nil {
			logger.Warn("error releasing the renderer: %s", stopErr)
		}

		writeErr := fs.WriteFile(*outPath, pngBytes, 0644)
		if writeErr != nil {
			return errorsx.Wrap(writeErr, "path", *outPath)
		}

		log.Printf("wrote %s\n", *outPath)

		return nil
	}))
}
