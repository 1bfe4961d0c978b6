package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

var gitCommit = "" // Git SHA1 commit hash of the release (set via linker flags)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	envFileFlag = cli.StringFlag{
		Name:  "env-file",
		Value: ".env",
		Usage: "dotenv file loaded before reading CLASSIFIER_* variables",
	}
	modelFlag = cli.StringFlag{
		Name:  "model",
		Usage: "path to the ONNX model",
	}
	labelsFlag = cli.StringFlag{
		Name:  "labels",
		Usage: "path to the label file, one label per line",
	}
	inputNameFlag = cli.StringFlag{
		Name:  "input-name",
		Usage: "name of the model input receiving the image tensor",
	}
	outputNameFlag = cli.StringFlag{
		Name:  "output-name",
		Usage: "name of the model output holding class scores (default: first output)",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: fmt.Sprintf("inference backend (%s, %s)", model.BackendONNXRuntime, model.BackendBorn),
	}
	providerFlag = cli.StringFlag{
		Name:  "provider",
		Usage: "execution provider (cpu, cuda, directml, coreml)",
	}
	deviceIDFlag = cli.IntFlag{
		Name:  "device-id",
		Usage: "accelerator device id",
	}
	threadsFlag = cli.IntFlag{
		Name:  "threads",
		Usage: "intra-op thread count, 0 lets the runtime decide",
	}
	ortLibFlag = cli.StringFlag{
		Name:  "ort-lib",
		Usage: "path to the onnxruntime shared library",
	}
	verbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level (panic, fatal, error, warn, info, debug, trace)",
	}
	topFlag = cli.IntFlag{
		Name:  "top",
		Value: 1,
		Usage: "also print the N best labels with their scores",
	}

	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP listen address",
	}
	cacheSizeFlag = cli.IntFlag{
		Name:  "cache-size",
		Usage: "number of upload results kept in memory, 0 disables caching",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "classify"
	app.Usage = "label an image with a pretrained convolutional network"
	app.ArgsUsage = "<image>"
	app.Version = "0.1.0"
	if gitCommit != "" {
		app.Version += "-" + gitCommit
	}
	app.Flags = []cli.Flag{
		configFileFlag,
		envFileFlag,
		modelFlag,
		labelsFlag,
		inputNameFlag,
		outputNameFlag,
		backendFlag,
		providerFlag,
		deviceIDFlag,
		threadsFlag,
		ortLibFlag,
		verbosityFlag,
		topFlag,
	}
	app.Action = classifyAction
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "serve predictions over HTTP",
			Action: serveAction,
			Flags:  []cli.Flag{listenFlag, cacheSizeFlag},
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
