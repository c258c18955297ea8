// Command mlspec compiles a specification file and prints the result as
// YAML, JSON or through a Go template.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/spec"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type options struct {
	file     string
	output   string
	template string
	config   string
}

func parseArgs(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("mlspec", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, "Usage:\n  mlspec [options] FILE\n\nOptions:\n")
		fs.PrintDefaults()
	}
	o := &options{}
	fs.StringVar(&o.file, "f", "", "Path to the specification file.")
	fs.StringVar(&o.output, "o", "", "Output format: yaml or json. Overrides the configuration.")
	fs.StringVar(&o.template, "t", "", "Go template rendered against the compiled specification.")
	fs.StringVar(&o.config, "c", "", "Path to a JSON configuration file.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.file == "" && fs.NArg() > 0 {
		o.file = fs.Arg(0)
	}
	if o.file == "" {
		fs.Usage()
		return nil, fmt.Errorf("no specification file given")
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	conf, err := utils.GetConfiguration(o.config)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if o.output != "" {
		conf.Output = o.output
		if err := conf.Validate(); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}
	utils.SetLogLevel(conf.LogLevel)
	logrus.Debugf("Configuration: %v", conf)

	data, err := os.ReadFile(o.file)
	if err != nil {
		fmt.Fprintf(stderr, "Failed read %v: %v\n", o.file, err)
		return 1
	}
	doc, err := tree.Load(data)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	c := &spec.Compiler{MinVersion: conf.MinVersion, MaxVersion: conf.MaxVersion}
	s, err := c.Compile(doc)
	if err != nil {
		if l, ok := err.(*errors.List); ok {
			logrus.Debugf("Compilation stopped at section %q", l.Section)
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	utils.SetLogLevel(conf.LogLevel, s.Logging.Level)
	logrus.Infof("Compiled %v %v", s.Kind, s.UUID)

	out, err := format(s, conf.Output, o.template)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprint(stdout, out)
	return 0
}

func format(s *spec.Specification, output, tpl string) (string, error) {
	if tpl != "" {
		return spec.Render(s, tpl)
	}
	var data []byte
	var err error
	if output == utils.OutputJSON {
		data, err = json.MarshalIndent(s, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return "", fmt.Errorf("Failed encode specification: %v", err)
	}
	return string(data), nil
}

func main() {
	utils.LogExit(run(os.Args[1:], os.Stdout, os.Stderr))
}
