// Command iscdemo runs in-storage computations over an object spread across
// the compute nodes of a cluster, and loads demo arrays into it.
//
// Usage:
//
//	iscdemo [-v|-vv] {ping|min|max} object_id length_kib
//	iscdemo [-v|-vv] load object_id [datafile]
//
// ping asks every node holding part of the object to greet back. min and
// max reduce the whitespace separated numbers stored in the first
// length_kib KiB of the object and print the position and value of the
// result. load reads a data file (a count followed by that many numbers),
// splits it over the discovered nodes and registers the object.
//
// Object ids are written "hi:lo" or "lo"; each half accepts any base
// prefix. Settings are read from .iscdemorc in the working directory and
// ISC_* environment variables.
//
// Exit status is 1 for usage and configuration errors, 2 when the
// computation cannot be set up, and 3 when the traversal fails.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/docker/go-units"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/isc/internal/cluster"
	"github.com/dreamware/isc/internal/compute"
	"github.com/dreamware/isc/internal/config"
	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/layout"
	"github.com/dreamware/isc/internal/transport"
)

const prog = "iscdemo"

const usage = `usage: iscdemo [-v|-vv] {ping|min|max} object_id length_kib
       iscdemo [-v|-vv] load object_id [datafile]`

const (
	exitUsage     = 1
	exitInit      = 2
	exitTraversal = 3
)

var fatalErr = errors.E(errors.Fatal)

func main() {
	log.AddFlags()
	var verbose, trace bool
	flag.BoolVar(&verbose, "v", false, "log diagnostics")
	flag.BoolVar(&trace, "vv", false, "log diagnostics and every merge step")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if verbose || trace {
		if err := flag.Set("log", "debug"); err != nil {
			log.Error.Printf("set log level: %v", err)
		}
	}

	cfg, err := config.Load(config.Path(prog))
	if err != nil {
		log.Error.Printf("%s: %v", prog, err)
		os.Exit(exitUsage)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, out: os.Stdout, trace: trace}
	if err := a.run(ctx, flag.Args()); err != nil {
		log.Error.Printf("%s: %v", prog, err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Match(fatalErr, err):
		return exitTraversal
	case errors.Is(errors.Invalid, err):
		return exitUsage
	default:
		return exitInit
	}
}

type app struct {
	cfg   config.Config
	out   io.Writer
	trace bool
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.E(errors.Invalid, usage)
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	switch cmd := args[0]; cmd {
	case "load":
		if len(args) < 2 || len(args) > 3 {
			return errors.E(errors.Invalid, usage)
		}
		path := a.cfg.DataFile
		if len(args) == 3 {
			path = args[2]
		}
		return a.load(ctx, args[1], path)
	default:
		if len(args) != 3 {
			return errors.E(errors.Invalid, usage)
		}
		op, err := compute.Lookup(cmd)
		if err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("%s\noperations: %s", usage, strings.Join(compute.Names(), ", ")), err)
		}
		return a.compute(ctx, op, args[1], args[2])
	}
}

// compute runs op over the first lengthKiB KiB of object objID.
func (a *app) compute(ctx context.Context, op *compute.Operation, objID, lengthKiB string) error {
	id, err := layout.ParseID(objID)
	if err != nil {
		return err
	}
	kib, err := strconv.ParseUint(lengthKiB, 0, 64)
	if err != nil {
		return errors.E(errors.Invalid, fmt.Sprintf("length %q", lengthKiB), err)
	}
	length := kib << 10
	if length < layout.MinLength || length>>10 != kib {
		return errors.E(errors.Invalid, fmt.Sprintf("length must be at least %d KiB", layout.MinLength>>10))
	}

	client := cluster.NewClient(a.cfg.Coordinator)
	obj, err := client.Object(ctx, id.String())
	if err != nil {
		return err
	}
	if length > obj.Size {
		log.Printf("length %s exceeds object %s; clamped to %s",
			units.BytesSize(float64(length)), obj.ID, units.BytesSize(float64(obj.Size)))
		length = obj.Size
	}
	services, err := compute.Discover(ctx, client)
	if err != nil {
		return err
	}
	if err := placed(obj, services); err != nil {
		return err
	}
	block := uint64(a.cfg.BlockSize)
	if block == 0 {
		block = obj.BlockSize()
	}
	log.Debug.Printf("%s over %v: %s in blocks of %s", op.Name, obj, units.BytesSize(float64(length)),
		units.BytesSize(float64(block)))

	tr := transport.New(transport.DefaultInflight)
	defer tr.Close()
	s := compute.NewSession(op, tr, a.out, int(a.cfg.ReplyCap))
	if a.trace {
		s.TraceMerges()
	}
	for off := uint64(0); off < length; off += block {
		n := min(block, length-off)
		plan, err := layout.Build(obj, off, n)
		if err != nil {
			return errors.E(errors.Fatal, err)
		}
		if err := s.Launch(ctx, plan, off+n == length); err != nil {
			return err
		}
	}
	return nil
}

// placed checks that every service holding part of obj is among the
// discovered ones.
func placed(obj *layout.Object, services []cluster.NodeInfo) error {
	known := make(map[string]bool, len(services))
	for _, s := range services {
		known[s.ID] = true
	}
	for _, p := range obj.Placements {
		if !known[p.Service] {
			return errors.E(errors.Unavailable,
				fmt.Sprintf("service %s holding %s is not available", p.Service, obj.ID))
		}
	}
	return nil
}

// load spreads the array in the data file at path over the discovered
// services and registers it as object objID.
func (a *app) load(ctx context.Context, objID, path string) error {
	id, err := layout.ParseID(objID)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.E(errors.Invalid, fmt.Sprintf("data file %s", path), err)
	}
	values, err := readData(f)
	f.Close()
	if err != nil {
		return errors.E(fmt.Sprintf("data file %s", path), err)
	}

	client := cluster.NewClient(a.cfg.Coordinator)
	services, err := compute.Discover(ctx, client)
	if err != nil {
		return err
	}
	chunks, err := compute.PlanChunks(uint64(len(values)), services)
	if err != nil {
		return err
	}
	obj := &layout.Object{ID: id.String(), UnitSize: uint64(a.cfg.UnitSize)}
	texts := make([][]byte, len(chunks))
	for i, c := range chunks {
		texts[i] = formatChunk(values[c.Start:c.End])
		obj.Placements = append(obj.Placements, layout.Placement{
			Service: c.Service.ID,
			Addr:    c.Service.Addr,
			Offset:  obj.Size,
			Length:  uint64(len(texts[i])),
		})
		obj.Size += uint64(len(texts[i]))
	}
	if err := obj.Validate(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			log.Debug.Printf("load %s: elements [%d, %d) to %s", obj.ID, c.Start, c.End, c.Service.ID)
			return cluster.PutChunk(gctx, c.Service.Addr, obj.ID, texts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := client.PutObject(ctx, obj); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "loaded %d values into %v\n", len(values), obj)
	return nil
}

// readData parses a data file: an element count followed by that many
// numbers, separated by whitespace.
func readData(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.E(errors.Invalid, "empty data file")
	}
	count, err := strconv.Atoi(sc.Text())
	if err != nil || count <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bad element count %q", sc.Text()))
	}
	values := make([]float64, 0, min(count, 1<<16))
	for len(values) < count && sc.Scan() {
		v, err := isc.ParseValue(sc.Text())
		if err != nil {
			return nil, errors.E(fmt.Sprintf("element %d", len(values)), err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values) < count {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%d elements declared, %d found", count, len(values)))
	}
	if sc.Scan() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("trailing data after %d elements", count))
	}
	return values, nil
}

// formatChunk renders values one per line.
func formatChunk(values []float64) []byte {
	var b []byte
	for _, v := range values {
		b = strconv.AppendFloat(b, v, 'g', -1, 64)
		b = append(b, '\n')
	}
	return b
}
