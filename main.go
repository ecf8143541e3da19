package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"spot-tracker/internal/capture"
	"spot-tracker/internal/config"
	"spot-tracker/internal/framelink"
	"spot-tracker/internal/panasonic"
	"spot-tracker/internal/pipeline"
	"spot-tracker/internal/ptz"
	"spot-tracker/internal/rtsp"
	"spot-tracker/internal/serialport"
	"spot-tracker/internal/server"
	"spot-tracker/internal/servo"
	"spot-tracker/internal/spot"
	"spot-tracker/internal/track"
	"spot-tracker/internal/visca"
)

func main() {
	// Command line flags
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	rtspURL := flag.String("rtsp", "", "RTSP URL for an MJPEG camera stream")
	framePort := flag.String("frame-port", "", "Serial device carrying length-prefixed JPEG frames")
	frameBaud := flag.Int("frame-baud", serialport.DefaultBaudRate, "Baud rate for -frame-port")
	camera := flag.String("camera", "", "Local camera index or video path (gocv builds only)")
	actuator := flag.String("actuator", "none", "Actuator: servo, visca, panasonic or none")
	servoPort := flag.String("servo-port", "", "Serial device of the servo controller (channels, ranges and trim come from the \"servo\" section of -tuning)")
	viscaAddr := flag.String("visca", "", "VISCA address (host:port)")
	viscaProto := flag.String("visca-proto", "udp", "VISCA protocol (udp or tcp)")
	panasonicAddr := flag.String("panasonic", "", "Panasonic camera address")
	width := flag.Int("width", 320, "Frame width in pixels")
	height := flag.Int("height", 240, "Frame height in pixels")
	tuningPath := flag.String("tuning", "", "Path to a JSON tuning file")
	fallback := flag.Bool("compressed-fallback", false, "Estimate the spot from JPEG bytes when decoding fails")
	auto := flag.Bool("auto", false, "Start in auto-track mode")
	flag.Parse()

	tuning := config.DefaultTuningConfig()
	if *tuningPath != "" {
		cfg, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning: %v", err)
		}
		tuning = cfg
	}

	act, err := openActuator(*actuator, tuning, actuatorFlags{
		servoPort:  *servoPort,
		visca:      *viscaAddr,
		viscaProto: *viscaProto,
		panasonic:  *panasonicAddr,
	})
	if err != nil {
		log.Fatalf("Failed to open actuator: %v", err)
	}

	ctl := track.New(tuning.TrackerConfig(*width, *height), act)
	if *auto || tuning.GetAutoTrack() {
		ctl.SetMode(track.ModeAutoTrack)
	}
	pipe := pipeline.New(spot.NewDetector(tuning.DetectorConfig()), ctl, pipeline.Config{
		StatusEvery:        tuning.GetStatusInterval(),
		CompressedFallback: *fallback || tuning.GetCompressedFallback(),
	})

	srv := server.New(server.Config{ListenAddr: *listenAddr}, pipe)
	pipe.SetStatusSink(srv.Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inputs, source, err := openSource(ctx, sourceFlags{
		rtsp:      *rtspURL,
		framePort: *framePort,
		frameBaud: *frameBaud,
		camera:    *camera,
		width:     *width,
		height:    *height,
	})
	if err != nil {
		log.Fatalf("Failed to open frame source: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pipe.Run(ctx, inputs); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Pipeline error: %v", err)
		}
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		srv.Stop()
	}()

	log.Printf("Spot Tracker")
	log.Printf("  Listen: %s", *listenAddr)
	log.Printf("  Image: %dx%d", *width, *height)
	log.Printf("  Actuator: %s", *actuator)
	log.Printf("  Mode: %s", ctl.Mode())

	err = srv.Start()
	cancel()
	<-done
	if source != nil {
		source.Close()
	}
	if act != nil {
		act.Close()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}

type actuatorFlags struct {
	servoPort  string
	visca      string
	viscaProto string
	panasonic  string
}

// openActuator returns nil for "none"; the controller then only tracks
// state.
func openActuator(kind string, tuning *config.TuningConfig, f actuatorFlags) (ptz.Actuator, error) {
	switch kind {
	case "none", "":
		return nil, nil
	case "servo":
		if f.servoPort == "" {
			return nil, fmt.Errorf("-servo-port is required for the servo actuator")
		}
		ctrl, err := servo.Open(servo.Config{
			Device:   f.servoPort,
			Channels: tuning.ServoChannels(),
		})
		if err != nil {
			return nil, err
		}
		if err := tuning.ApplyServo(ctrl); err != nil {
			ctrl.Close()
			return nil, err
		}
		log.Printf("Connected to servo controller: %s", f.servoPort)
		return ctrl, nil
	case "visca":
		ctrl, err := visca.NewController(visca.Config{
			Address:  f.visca,
			Protocol: f.viscaProto,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Connected to VISCA: %s (%s)", f.visca, f.viscaProto)
		return ctrl, nil
	case "panasonic":
		ctrl, err := panasonic.NewController(panasonic.Config{Address: f.panasonic})
		if err != nil {
			return nil, err
		}
		log.Printf("Using Panasonic camera: %s", f.panasonic)
		return ctrl, nil
	default:
		return nil, fmt.Errorf("unknown actuator %q", kind)
	}
}

type sourceFlags struct {
	rtsp      string
	framePort string
	frameBaud int
	camera    string
	width     int
	height    int
}

// openSource opens the single configured frame source. With no source the
// returned channel is nil and the pipeline only serves commands.
func openSource(ctx context.Context, f sourceFlags) (<-chan pipeline.Input, io.Closer, error) {
	switch {
	case f.rtsp != "":
		client, err := rtsp.NewClient(f.rtsp)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Connect(); err != nil {
			log.Printf("Warning: Failed to connect to RTSP: %v", err)
		} else {
			log.Printf("Connected to RTSP: %s", f.rtsp)
		}
		return pipeline.FromJPEG(ctx, client.Frames()), client, nil

	case f.framePort != "":
		link, err := framelink.Open(f.framePort, serialport.PortOptions{BaudRate: f.frameBaud}, framelink.DefaultMaxFrameSize)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Reading frames from %s", f.framePort)
		return pipeline.FromJPEG(ctx, link.Frames()), link, nil

	case f.camera != "":
		cam, err := capture.Open(capture.Config{Device: f.camera, Width: f.width, Height: f.height})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Capturing from camera %s", f.camera)
		return pipeline.FromFrames(ctx, cam.Frames()), cam, nil
	}

	log.Printf("Warning: no frame source configured, tracking is idle")
	return nil, nil, nil
}
