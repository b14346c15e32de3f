package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/cmd"
	"github.com/vsariola/beatbox/config"
	"github.com/vsariola/beatbox/engine"
	"github.com/vsariola/beatbox/gomidi"
	"github.com/vsariola/beatbox/status"
	"github.com/vsariola/beatbox/store"
	"github.com/vsariola/beatbox/version"
)

var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	prefs := config.MakePreferences()
	midiOutput := flag.String("midi-output", prefs.MIDI.Output, "Open the first MIDI output whose name starts with this prefix. Empty opens the first output.")
	noMidi := flag.Bool("no-midi", false, "Do not open a MIDI output.")
	serialPort := flag.String("serial", "", "Also send the notes as raw MIDI to this serial device.")
	baud := flag.Int("baud", prefs.MIDI.SerialBaud, "Baud rate of the serial device.")
	record := flag.String("record", "", "Record the played notes to this .mid file.")
	save := flag.Bool("save", false, "Write changes made during playback back to the session file.")
	quiet := flag.Bool("quiet", false, "Do not print the status.")
	workers := flag.Int("workers", prefs.Bus.Workers, "Number of bus workers; 0 delivers status and saves on the clock goroutine.")
	duration := flag.Duration("duration", 0, "Stop after this long. By default, play until interrupted.")
	bpm := flag.Float64("bpm", 0, "Override the tempo of every session.")
	debug := flag.Bool("debug", false, "Log debug messages.")
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(0)
	}
	initLogger(*debug)
	if prefs.YmlError != nil {
		logger.Warn("ignoring invalid preferences", "err", prefs.YmlError)
		prefs = config.DefaultPreferences()
	}

	file, err := store.Open(flag.Arg(0))
	if err != nil {
		logger.Error("could not open session file", "err", err)
		os.Exit(1)
	}
	doc := file.Document()
	if len(doc.Sessions) == 0 {
		logger.Error("no sessions in file", "file", file.Path())
		os.Exit(1)
	}

	var outputs []beatbox.Instrument
	var closers []func()
	if !*noMidi {
		instrument, closer, err := cmd.OpenMIDIOutput(*midiOutput)
		if err != nil {
			logger.Error("could not open MIDI output", "err", err)
			os.Exit(1)
		}
		logger.Info("MIDI output opened", "port", instrument.String())
		outputs = append(outputs, instrument)
		closers = append(closers, closer)
	}
	if *serialPort != "" {
		s, err := gomidi.OpenSerial(*serialPort, *baud)
		if err != nil {
			logger.Error("could not open serial port", "err", err)
			os.Exit(1)
		}
		logger.Info("serial port opened", "device", *serialPort, "baud", *baud)
		outputs = append(outputs, s)
		closers = append(closers, func() { s.Close() })
	}
	output := beatbox.MultiInstrument(outputs...)
	var recorder *gomidi.Recorder
	if *record != "" {
		recorder = gomidi.NewRecorder(output, doc.Sessions[0].BPM)
		output = recorder
	}

	bus := engine.NewBus(engine.BusOptions{Workers: *workers, QueueSize: prefs.Bus.QueueSize, Logger: logger})
	instruments := engine.NewRegistry()
	instruments.Register(0, output)
	ectx := engine.Context{Bus: bus, Instruments: instruments, Logger: logger, StopTimeout: prefs.StopTimeout}
	var sessions []*engine.Session
	for _, rec := range doc.Sessions {
		s, err := engine.NewSession(ectx, rec.SessionConfig)
		if err != nil {
			logger.Error("invalid session", "session", rec.ID, "err", err)
			os.Exit(1)
		}
		for _, p := range rec.Players {
			// every instrument id of the file plays through the opened outputs
			instruments.Register(p.Instrument, output)
			if _, err := s.AddPlayer(p); err != nil {
				logger.Error("invalid player", "session", rec.ID, "player", p.ID, "err", err)
				os.Exit(1)
			}
		}
		sessions = append(sessions, s)
	}

	if *save {
		bus.Register(store.NewFileSyncer(file))
	}
	if !*quiet {
		kinds, err := prefs.StatusKinds()
		if err != nil {
			logger.Error("invalid status commands in preferences", "err", err)
			os.Exit(1)
		}
		printer, err := status.New(os.Stdout, prefs.Status.Template, kinds...)
		if err != nil {
			logger.Error("invalid status template in preferences", "err", err)
			os.Exit(1)
		}
		bus.Register(printer)
	}
	if *bpm > 0 {
		if recorder != nil {
			recorder.BPM = *bpm
		}
		for _, s := range sessions {
			if err := s.SetBPM(*bpm); err != nil {
				logger.Error("could not set tempo", "session", s.ID(), "err", err)
				os.Exit(1)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	for _, s := range sessions {
		if err := s.Play(); err != nil {
			logger.Error("could not start session", "session", s.ID(), "err", err)
			os.Exit(1)
		}
		logger.Info("playing", "session", s.ID(), "bpm", s.Config().BPM, "interval", s.TickInterval())
	}
	<-ctx.Done()

	retval := 0
	for _, s := range sessions {
		if err := s.Stop(); err != nil {
			logger.Error("could not stop session", "session", s.ID(), "err", err)
			retval = 1
		}
	}
	// Stop has switched off the sounding notes, so the ports can be closed
	if err := bus.Shutdown(prefs.Bus.ShutdownTimeout); err != nil {
		logger.Warn("bus did not shut down cleanly", "err", err, "dropped", bus.Dropped())
	}
	if recorder != nil {
		if err := writeRecording(recorder, *record); err != nil {
			logger.Error("could not write recording", "err", err)
			retval = 1
		} else {
			logger.Info("recording written", "file", *record, "messages", recorder.Len())
		}
	}
	for _, c := range closers {
		c()
	}
	os.Exit(retval)
}

func writeRecording(r *gomidi.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Beatbox command line utility for playing .yml/.json session files over MIDI.\nUsage: %s [flags] session.yml\n", os.Args[0])
	flag.PrintDefaults()
}
