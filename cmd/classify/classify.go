package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/Brownie44l1/image-classifier/internal/classifier"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

const usageMessage = "Please provide the path to an image file as a command-line argument."

// Process exit codes.
const (
	exitOK = iota
	exitFailure
	exitUsage
	exitImageDecode
	exitModelLoad
	exitInference
	exitIndexOutOfRange
)

func classifyAction(c *cli.Context) error {
	if c.NArg() == 0 {
		fmt.Fprintln(c.App.Writer, usageMessage)
		return cli.NewExitError("", exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err, exitFailure)
	}
	setupLogging(cfg)

	clf, engine, err := openClassifier(cfg)
	if err != nil {
		return exitError(err)
	}
	defer engine.Close()

	if err := classifyImage(os.Stdout, clf, c.Args().First(), c.GlobalInt(topFlag.Name)); err != nil {
		return exitError(err)
	}
	return nil
}

// classifyImage prints the most likely label of the image at path and,
// when top is above one, the ranked runners-up.
func classifyImage(w io.Writer, clf *classifier.Classifier, path string, top int) error {
	result, err := clf.ClassifyFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "This is most likely: %s\n", result.Label)

	if top > 1 {
		predictions, err := result.Top(clf.Labels(), top)
		if err != nil {
			return err
		}
		for i, p := range predictions {
			fmt.Fprintf(w, "%2d. %-30s %.4f\n", i+1, p.Label, p.Score)
		}
	}
	return nil
}

func exitCode(err error) int {
	switch model.KindOf(err) {
	case "":
		return exitOK
	case model.KindImageDecode:
		return exitImageDecode
	case model.KindModelLoad:
		return exitModelLoad
	case model.KindInference:
		return exitInference
	case model.KindIndexOutOfRange:
		return exitIndexOutOfRange
	default:
		return exitFailure
	}
}

func exitError(err error) error {
	logrus.WithField("kind", model.KindOf(err)).WithError(err).Debug("Classification failed")
	return cli.NewExitError(err, exitCode(err))
}
