// Command alarmwatchd runs the acoustic alarm detection engine against
// either a live microphone or a WAV replay file, logging matches and
// optionally serving a tuner web UI. Grounded on nwpulei-cw's cmd/main.go
// (signal handling, replay-vs-live branching), upgraded from stdlib flag
// to pflag and from a single hand-wired system to the profiles/audiosrc/
// history/tuner collaborators.
package main

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	alarm "alarmwatch"
	"alarmwatch/audiosrc"
	"alarmwatch/history"
	"alarmwatch/profiles"
	"alarmwatch/tuner"
)

func main() {
	profilesPath := pflag.String("profiles", "", "path to a profiles YAML file (required)")
	replayFile := pflag.String("replay", "", "WAV file to replay instead of live capture")
	micDevice := pflag.String("device", "", "substring match for the capture device name")
	highRes := pflag.Bool("high-resolution", false, "use the high-resolution preset's chunk size (2048) instead of standard (4096)")
	historyPath := pflag.String("history", "", "path to a SQLite file for match history (disabled if empty)")
	tunerAddr := pflag.String("tuner-addr", "", "address to serve the profile tuner on, e.g. :8090 (disabled if empty)")
	logFile := pflag.String("log-file", "", "rotate logs through this file instead of stderr only")
	pflag.Parse()

	if *profilesPath == "" {
		alarm.Logger.Fatal("missing required flag", "flag", "--profiles")
	}

	if *logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		alarm.Logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}

	loadedProfiles, err := profiles.LoadProfilesFromYAML(*profilesPath)
	if err != nil {
		alarm.Logger.Fatal("failed to load profiles", "error", err)
	}

	chunkSize := 4096
	if *highRes {
		chunkSize = 2048
	}

	var hist *history.Store
	if *historyPath != "" {
		hist, err = history.New(*historyPath, 10000)
		if err != nil {
			alarm.Logger.Fatal("failed to open history store", "error", err)
		}
		defer hist.Close()
	}

	var tunerServer *tuner.Server
	if *tunerAddr != "" {
		tunerServer = tuner.NewServer(".")
		go func() {
			if err := tunerServer.Run(*tunerAddr); err != nil {
				alarm.Logger.Error("tuner server stopped", "error", err)
			}
		}()
	}

	sink := alarm.Sink{
		OnDetection: func(name string) {
			alarm.Logger.Warn("ALARM DETECTED", "profile", name)
		},
		OnMatch: func(match alarm.PatternMatchEvent) {
			if hist != nil {
				if err := hist.RecordMatch(match); err != nil {
					alarm.Logger.Error("failed to record match", "error", err)
				}
			}
			if tunerServer != nil {
				tunerServer.BroadcastMatch(match)
			}
		},
	}

	var source audiosrc.ChunkSource
	if *replayFile != "" {
		source, err = audiosrc.NewWAVSource(*replayFile)
	} else {
		source, err = audiosrc.NewMicSource(16000, *micDevice)
	}
	if err != nil {
		alarm.Logger.Fatal("failed to open audio source", "error", err)
	}
	defer source.Close()

	config := alarm.AudioConfig{SampleRate: float64(source.SampleRate()), ChunkSize: chunkSize}
	engine := alarm.NewEngine(loadedProfiles, config, sink)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go runPipeline(engine, source, chunkSize, done)

	select {
	case <-sigChan:
		alarm.Logger.Info("shutting down on signal")
	case <-done:
		alarm.Logger.Info("audio source exhausted")
	}
}

// runPipeline drains source in chunkSize increments, feeding each one to
// engine, until the source errs out (io.EOF for a finished replay file).
func runPipeline(engine *alarm.Engine, source audiosrc.ChunkSource, chunkSize int, done chan<- struct{}) {
	defer close(done)

	for {
		chunk, err := source.ReadChunk(chunkSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				alarm.Logger.Error("audio read failed", "error", err)
			}
			engine.Flush()
			return
		}
		engine.ProcessChunk(chunk)
	}
}
