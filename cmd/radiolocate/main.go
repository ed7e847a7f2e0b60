// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.28
//

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	m "github.com/mkhts/radiolocate"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "err=%s\n", err.Error())
		flag.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		fmt.Fprintf(os.Stderr, "err=%s\n", err.Error())
		os.Exit(1)
	}
}

type cmdOpt struct {
	readingsFn string
	optionsFn  string
	mode       string
	verbose    int
}

func parseArgs() (cmdOpt, error) {
	var args cmdOpt
	flag.StringVar(&args.readingsFn, "i", "", "readings file (JSON)")
	flag.StringVar(&args.optionsFn, "c", "", "estimator options file (YAML)")
	flag.StringVar(&args.mode, "mode", "auto", "estimation mode: ranging, rssi, sequential, auto")
	flag.IntVar(&args.verbose, "v", 0, "debug level (0-2)")
	flag.Parse()

	if args.readingsFn == "" {
		return args, fmt.Errorf("readings file is required")
	}
	if !slices.Contains([]string{"ranging", "rssi", "sequential", "auto"}, args.mode) {
		return args, fmt.Errorf("unknown mode %q", args.mode)
	}
	return args, nil
}

// Main application processing
func runApplication(args cmdOpt) error {

	switch args.verbose {
	case 0:
		m.SetLogLevel(logrus.WarnLevel)
	case 1:
		m.SetLogLevel(logrus.InfoLevel)
	default:
		m.SetLogLevel(logrus.DebugLevel)
	}

	// Load input files
	readings, quality, err := readReadings(args.readingsFn)
	if err != nil {
		return fmt.Errorf("failed to read readings file: %w", err)
	}

	opts := defaultOptions()
	if args.optionsFn != "" {
		if err := readOptions(args.optionsFn, &opts); err != nil {
			return fmt.Errorf("failed to read options file: %w", err)
		}
	}

	// Run the estimation
	sol, err := estimate(args.mode, readings, quality, opts)
	if err != nil {
		return fmt.Errorf("estimation failed: %w", err)
	}

	// Print results
	printSolution(sol, len(readings))
	return nil
}

//-------------------------------------------------------------------
// Input files
//-------------------------------------------------------------------

type sourceFile struct {
	Type      string  `json:"type"` // "wifi" or "beacon"
	BSSID     string  `json:"bssid"`
	UUID      string  `json:"uuid"`
	Major     uint16  `json:"major"`
	Minor     uint16  `json:"minor"`
	Frequency float64 `json:"frequency"`
}

type readingFile struct {
	Source   sourceFile `json:"source"`
	Readings []struct {
		Position       []float64 `json:"position"`
		Distance       *float64  `json:"distance"`
		RSSI           *float64  `json:"rssi"`
		DistanceStdDev float64   `json:"distanceStdDev"`
		RSSIStdDev     float64   `json:"rssiStdDev"`
		Quality        *float64  `json:"quality"`
	} `json:"readings"`
}

type estimatorOptions struct {
	Method           string  `yaml:"method"`
	Threshold        float64 `yaml:"threshold"`
	Confidence       float64 `yaml:"confidence"`
	MaxIterations    int     `yaml:"maxIterations"`
	RssiMethod       string  `yaml:"rssiMethod"`
	RssiThreshold    float64 `yaml:"rssiThreshold"`
	EstimatePower    bool    `yaml:"estimatePower"`
	EstimatePathLoss bool    `yaml:"estimatePathLoss"`
	InitialPowerdBm  float64 `yaml:"initialPowerdBm"`
	InitialPathLoss  float64 `yaml:"initialPathLossExponent"`
	NonLinear        bool    `yaml:"nonLinear"`
	Seed             *uint64 `yaml:"seed"`
}

func defaultOptions() estimatorOptions {
	return estimatorOptions{
		Method:          "RANSAC",
		RssiMethod:      "RANSAC",
		EstimatePower:   true,
		InitialPowerdBm: m.DefaultTransmittedPowerdBm,
		InitialPathLoss: m.DefaultPathLossExponent,
		NonLinear:       true,
	}
}

func readReadings(fn string) ([]m.Reading, []float64, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, nil, err
	}
	var rf readingFile
	if err := json.Unmarshal(buf, &rf); err != nil {
		return nil, nil, err
	}

	var source m.RadioSource
	switch rf.Source.Type {
	case "beacon":
		source, err = m.NewBeacon(rf.Source.UUID, rf.Source.Major, rf.Source.Minor, rf.Source.Frequency)
	default:
		source, err = m.NewWifiAccessPoint(rf.Source.BSSID, rf.Source.Frequency)
	}
	if err != nil {
		return nil, nil, err
	}

	readings := make([]m.Reading, 0, len(rf.Readings))
	var quality []float64
	for i, rec := range rf.Readings {
		pos := m.Point(rec.Position)
		var r m.Reading
		switch {
		case rec.Distance != nil && rec.RSSI != nil:
			r, err = m.NewRangingAndRssiReading(source, pos, *rec.Distance, *rec.RSSI)
		case rec.Distance != nil:
			r, err = m.NewRangingReading(source, pos, *rec.Distance)
		case rec.RSSI != nil:
			r, err = m.NewRssiReading(source, pos, *rec.RSSI)
		default:
			err = fmt.Errorf("reading %d has neither distance nor rssi", i)
		}
		if err != nil {
			return nil, nil, err
		}
		if rec.DistanceStdDev > 0 || rec.RSSIStdDev > 0 {
			r, err = r.WithStandardDeviations(rec.DistanceStdDev, rec.RSSIStdDev)
			if err != nil {
				return nil, nil, err
			}
		}
		readings = append(readings, r)
		if rec.Quality != nil {
			quality = append(quality, *rec.Quality)
		}
	}
	if quality != nil && len(quality) != len(readings) {
		return nil, nil, fmt.Errorf("quality scores on some readings only")
	}
	return readings, quality, nil
}

func readOptions(fn string, opts *estimatorOptions) error {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(buf, opts)
}

//-------------------------------------------------------------------
// Estimation
//-------------------------------------------------------------------

func estimate(mode string, readings []m.Reading, quality []float64, opts estimatorOptions) (*m.Solution, error) {

	if mode == "auto" {
		mode = inferMode(readings)
	}

	method, err := m.ParseRobustMethod(opts.Method)
	if err != nil {
		return nil, err
	}
	rssiMethod, err := m.ParseRobustMethod(opts.RssiMethod)
	if err != nil {
		return nil, err
	}

	switch mode {
	case "ranging":
		e := m.NewRangingEstimator()
		if err := configureBase(e, method, opts.Threshold, quality, opts); err != nil {
			return nil, err
		}
		if err := e.SetReadings(readings); err != nil {
			return nil, err
		}
		return e.Estimate()

	case "rssi":
		e := m.NewRssiEstimator()
		if err := configureBase(e, rssiMethod, opts.RssiThreshold, quality, opts); err != nil {
			return nil, err
		}
		if err := configurePathLoss(e.SetTransmittedPowerEstimationEnabled, e.SetPathLossEstimationEnabled,
			e.SetInitialTransmittedPowerdBm, e.SetInitialPathLossExponent, opts); err != nil {
			return nil, err
		}
		if err := e.SetReadings(readings); err != nil {
			return nil, err
		}
		return e.Estimate()

	case "sequential":
		e := m.NewSequentialEstimator()
		if err := configureBase(e, method, opts.Threshold, quality, opts); err != nil {
			return nil, err
		}
		if err := e.SetRssiRobustMethod(rssiMethod); err != nil {
			return nil, err
		}
		if opts.RssiThreshold > 0 {
			if err := e.SetRssiThreshold(opts.RssiThreshold); err != nil {
				return nil, err
			}
		}
		if err := configurePathLoss(e.SetTransmittedPowerEstimationEnabled, e.SetPathLossEstimationEnabled,
			e.SetInitialTransmittedPowerdBm, e.SetInitialPathLossExponent, opts); err != nil {
			return nil, err
		}
		if err := e.SetReadings(readings); err != nil {
			return nil, err
		}
		return e.Estimate()

	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// baseConfig is the setter surface shared by all estimators.
type baseConfig interface {
	SetRobustMethod(m.RobustMethod) error
	SetQualityScores([]float64) error
	SetThreshold(float64) error
	SetConfidence(float64) error
	SetMaxIterations(int) error
	SetNonLinearSolverEnabled(bool) error
	SetComputeAndKeepInliers(bool) error
	SetComputeAndKeepResiduals(bool) error
	SetRandomSeed(uint64) error
}

func configureBase(e baseConfig, method m.RobustMethod, threshold float64, quality []float64, opts estimatorOptions) error {
	if err := e.SetRobustMethod(method); err != nil {
		return err
	}
	if quality != nil {
		if err := e.SetQualityScores(quality); err != nil {
			return err
		}
	}
	if threshold > 0 {
		if err := e.SetThreshold(threshold); err != nil {
			return err
		}
	}
	if opts.Confidence > 0 {
		if err := e.SetConfidence(opts.Confidence); err != nil {
			return err
		}
	}
	if opts.MaxIterations > 0 {
		if err := e.SetMaxIterations(opts.MaxIterations); err != nil {
			return err
		}
	}
	if err := e.SetNonLinearSolverEnabled(opts.NonLinear); err != nil {
		return err
	}
	if err := e.SetComputeAndKeepInliers(true); err != nil {
		return err
	}
	if err := e.SetComputeAndKeepResiduals(true); err != nil {
		return err
	}
	if opts.Seed != nil {
		if err := e.SetRandomSeed(*opts.Seed); err != nil {
			return err
		}
	}
	return nil
}

func configurePathLoss(setPowerEnabled, setPathLossEnabled func(bool) error,
	setPowerdBm, setPathLoss func(float64) error, opts estimatorOptions) error {
	if err := setPowerEnabled(opts.EstimatePower); err != nil {
		return err
	}
	if err := setPathLossEnabled(opts.EstimatePathLoss); err != nil {
		return err
	}
	if err := setPowerdBm(opts.InitialPowerdBm); err != nil {
		return err
	}
	return setPathLoss(opts.InitialPathLoss)
}

func inferMode(readings []m.Reading) string {
	both, dist := true, true
	for _, r := range readings {
		_, hasD := r.Distance()
		_, hasR := r.RSSI()
		if !hasD || !hasR {
			both = false
		}
		if !hasD {
			dist = false
		}
	}
	switch {
	case both:
		return "sequential"
	case dist:
		return "ranging"
	default:
		return "rssi"
	}
}

func printSolution(sol *m.Solution, total int) {
	fmt.Printf("position: %s\n", sol.Position)
	if sol.PositionCovariance != nil {
		fmt.Printf("accuracy: %.3f m\n", sol.Accuracy())
	}
	if !math.IsNaN(sol.TransmittedPowerdBm) {
		fmt.Printf("transmitted power: %.2f dBm (%.6f mW)\n", sol.TransmittedPowerdBm, sol.TransmittedPower())
	}
	if !math.IsNaN(sol.PathLossExponent) {
		fmt.Printf("path loss exponent: %.3f\n", sol.PathLossExponent)
	}
	fmt.Printf("inliers: %d / %d readings, %d iterations\n", sol.NumInliers, total, sol.Iterations)
}
