package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/layout"
	"go.uber.org/zap"
)

const usage = `usage:
  lyt-tool dump [-yaml] <file.lyt>      print the cones of a layout
  lyt-tool write <track.yaml> <dir>     write a track description as <dir>/<world>_<name>.lyt
`

func main() {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	lgr, err := config.Build()
	if err != nil {
		log.Fatalf("unable to init logger: %v", err)
	}
	zap.ReplaceGlobals(lgr)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		zap.S().Fatalf("%v", err)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}
	switch args[0] {
	case "dump":
		return dump(args[1:], out)
	case "write":
		return write(args[1:], out)
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func dump(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	asYaml := flags.Bool("yaml", false, "print a track description, in track coordinates when the world is known")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("dump needs one layout file\n%s", usage)
	}
	path := flags.Arg(0)

	cones, err := layout.Load(path)
	if err != nil {
		return fmt.Errorf("unable to load layout: %w", err)
	}

	if !*asYaml {
		fmt.Fprintf(out, "%v: %d cones\n", path, cones.Len())
		for _, t := range cone.Types {
			fmt.Fprintf(out, "  %-12v %d\n", t, len(cones[t]))
		}
		return nil
	}

	world, name := splitName(path)
	if offset, err := world.Offset(); err == nil {
		cones = cones.Translate(offset.Mul(-1))
	} else {
		zap.S().Warnf("unknown world for %v, keep file coordinates", path)
	}
	content, err := layout.NewTrack(world, name, cones).Marshal()
	if err != nil {
		return err
	}
	_, err = out.Write(content)
	return err
}

// splitName returns the world and name of a <world>_<name>.lyt file
func splitName(path string) (layout.World, string) {
	base := strings.TrimSuffix(filepath.Base(path), layout.Extension)
	world, name, found := strings.Cut(base, "_")
	if !found {
		return "", base
	}
	return layout.World(world), name
}

func write(args []string, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("write needs a track and a directory\n%s", usage)
	}
	track, err := layout.LoadTrack(args[0])
	if err != nil {
		return err
	}
	cones, err := track.ConeMap()
	if err != nil {
		return err
	}
	path, err := layout.Write(args[1], track.World, track.Name, cones)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%v written, %d cones\n", path, cones.Len())
	return nil
}
