package main

import (
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/api"
	"github.com/sudomakeinstall/cardio/internal/logger"
	"github.com/sudomakeinstall/cardio/pkg/config"
	"github.com/sudomakeinstall/cardio/pkg/metaimage"
	"github.com/sudomakeinstall/cardio/pkg/mpr"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
	"github.com/sudomakeinstall/cardio/pkg/visualization"
)

// loadVolumes reads every configured series
func loadVolumes(cfg *config.Config, log logger.ILogger) ([]api.VolumeEntry, error) {
	wl, ok := mpr.PresetByName(cfg.MPR.WindowLevelPreset)
	if !ok {
		return nil, errors.Errorf("unknown window/level preset %q", cfg.MPR.WindowLevelPreset)
	}

	entries := []api.VolumeEntry{}
	for _, vc := range cfg.Volumes {
		frames, err := metaimage.LoadSeries(vc.Directory, vc.Pattern, log)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load volume %s", vc.Label)
		}
		vol, err := mpr.NewVolume(vc.Label, frames, wl)
		if err != nil {
			return nil, err
		}
		log.Infof("Loaded volume %s: %d frames from %s", vc.Label, vol.NumFrames(), vc.Directory)
		entries = append(entries, api.VolumeEntry{Volume: vol, Visible: vc.Visible})
	}
	return entries, nil
}

// makeStore opens the configured rotation store
func makeStore(cfg *config.Config) (rotation.Store, error) {
	switch cfg.Rotations.Backend {
	case config.BackendLocal:
		return &rotation.LocalStore{Root: cfg.Rotations.Root}, nil
	case config.BackendS3:
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Rotations.Region)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create AWS session")
		}
		return rotation.NewS3Store(s3.New(sess), cfg.Rotations.Bucket, cfg.Rotations.Prefix), nil
	}
	return nil, errors.Errorf("unknown rotations backend %q", cfg.Rotations.Backend)
}

// sessionOptions maps the config onto the session
func sessionOptions(cfg *config.Config, store rotation.Store, log logger.ILogger) (api.Options, error) {
	policy, err := mpr.ParseOriginPolicy(cfg.MPR.OriginPolicy)
	if err != nil {
		return api.Options{}, err
	}
	wl, _ := mpr.PresetByName(cfg.MPR.WindowLevelPreset)
	order, err := orientation.ParseAxisConvention(cfg.MPR.IndexOrder)
	if err != nil {
		return api.Options{}, err
	}
	units, err := orientation.ParseAngleUnits(cfg.MPR.AngleUnits)
	if err != nil {
		return api.Options{}, err
	}
	return api.Options{
		Store:       store,
		Policy:      policy,
		WindowLevel: wl,
		IndexOrder:  order,
		AngleUnits:  units,
		BPM:         cfg.Cine.BPM,
		Log:         log,
	}, nil
}

// exportSlices writes count slices per view of frame 0 of vol, cut with seq,
// to <dir>/<label>/<view>/slice_<view>_NNN.jpg. A nil seq cuts through the
// volume centre with no rotation.
func exportSlices(vol *mpr.Volume, seq *rotation.Sequence, count int, dir string) error {
	if seq == nil {
		seq = rotation.NewSequence(vol.Label)
		centre, _ := vol.Center(0)
		seq.SetITKOrigin(centre)
	}
	if err := vol.UpdateSlicePositions(0, seq.Origin, seq, nil); err != nil {
		return err
	}
	planes, ok := vol.Planes(0)
	if !ok {
		return errors.Errorf("volume %s has no frame 0", vol.Label)
	}

	for _, plane := range planes.All() {
		viewer := visualization.NewViewer(plane.Image)
		outDir := filepath.Join(dir, vol.Label, string(plane.View))
		opts := visualization.SliceOptions{Window: plane.Window, Level: plane.Level}
		if err := viewer.SaveSliceSequence(string(plane.View), plane.Matrix, count, opts, outDir); err != nil {
			return errors.Wrapf(err, "failed to export %s slices of %s", plane.View, vol.Label)
		}
		fmt.Printf("Saved %d %s slices to: %s\n", count, plane.View, outDir)
	}
	return nil
}
