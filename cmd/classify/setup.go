package main

import (
	"os"

	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/Brownie44l1/image-classifier/internal/classifier"
	"github.com/Brownie44l1/image-classifier/internal/config"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

// loadConfig layers defaults, the TOML file, the environment and finally
// the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	if err := config.LoadEnvFile(c.GlobalString(envFileFlag.Name)); err != nil {
		return nil, err
	}
	if file := c.GlobalString(configFileFlag.Name); file != "" {
		if err := config.LoadFile(file, &cfg); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	strs := map[string]*string{
		modelFlag.Name:      &cfg.ModelPath,
		labelsFlag.Name:     &cfg.LabelsPath,
		inputNameFlag.Name:  &cfg.InputName,
		outputNameFlag.Name: &cfg.OutputName,
		backendFlag.Name:    &cfg.Backend,
		providerFlag.Name:   &cfg.Provider,
		ortLibFlag.Name:     &cfg.SharedLibraryPath,
		verbosityFlag.Name:  &cfg.LogLevel,
	}
	for name, dst := range strs {
		if c.GlobalIsSet(name) {
			*dst = c.GlobalString(name)
		}
	}
	if c.GlobalIsSet(deviceIDFlag.Name) {
		cfg.DeviceID = c.GlobalInt(deviceIDFlag.Name)
	}
	if c.GlobalIsSet(threadsFlag.Name) {
		cfg.Threads = c.GlobalInt(threadsFlag.Name)
	}
	if c.IsSet(listenFlag.Name) {
		cfg.Listen = c.String(listenFlag.Name)
	}
	if c.IsSet(cacheSizeFlag.Name) {
		cfg.CacheSize = c.Int(cacheSizeFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// openClassifier loads the model and the label table. The returned engine
// must be closed by the caller; on error nothing is left open.
func openClassifier(cfg *config.Config) (*classifier.Classifier, model.Engine, error) {
	session, err := cfg.Session()
	if err != nil {
		return nil, nil, &model.ModelLoadError{Resource: "engine", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"model":    cfg.ModelPath,
		"backend":  cfg.Backend,
		"provider": session.Provider,
		"input":    session.InputName,
	}).Debug("Loading model")

	engine, err := model.Open(cfg.Backend, session)
	if err != nil {
		return nil, nil, err
	}

	labels, err := classifier.LoadLabels(cfg.LabelsPath)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	logrus.WithField("classes", len(labels)).Debug("Loaded labels")

	return classifier.New(engine, labels), engine, nil
}
