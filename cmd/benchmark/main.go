package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/appstate/storage"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const (
	itersKey      = "iters"
	maxWidthKey   = "max-width"
	maxDepthKey   = "max-depth"
	cpuProfileKey = "pgo"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Time how long a store write takes to reach every link and prop",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Writes per configuration",
				Value: 100,
			},
			&cli.UintFlag{
				Name:  maxWidthKey,
				Usage: "Largest number of chains hanging off the key",
				Value: 1_000,
			},
			&cli.UintFlag{
				Name:  maxDepthKey,
				Usage: "Largest chain length",
				Value: 100,
			},
			&cli.BoolFlag{
				Name:  cpuProfileKey,
				Usage: "Write a CPU profile to default.pgo",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool(cpuProfileKey) {
		f, err := os.Create("default.pgo")
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	iters := int(cmd.Uint(itersKey))
	ww := powersOfTen(int(cmd.Uint(maxWidthKey)))
	hh := powersOfTen(int(cmd.Uint(maxDepthKey)))

	for _, k := range []chainKind{linkChain, propChain} {
		if err := benchmark(k, ww, hh, iters); err != nil {
			return err
		}
	}
	return nil
}

func powersOfTen(max int) []int {
	var out []int
	for n := 1; n <= max; n *= 10 {
		out = append(out, n)
	}
	return out
}

type chainKind string

const (
	linkChain chainKind = "link"
	propChain chainKind = "prop"
)

// node is anything a chain can grow from.
type node interface {
	storage.Source[int]
	CreateLink(subscriber storage.Subscriber, info string) *storage.TwoWay[int]
	CreateProp(subscriber storage.Subscriber, info string) *storage.OneWay[int]
}

func (k chainKind) extend(n node) node {
	if k == linkChain {
		return n.CreateLink(nil, "")
	}
	return n.CreateProp(nil, "")
}

// counter stands in for the view at the end of each chain.
type counter struct {
	id  storage.SubscriberID
	hit int
}

func (c *counter) ID() storage.SubscriberID { return c.id }
func (c *counter) AboutToBeDeleted() {}
func (c *counter) PropertyHasChanged(string) { c.hit++ }

func benchmark(kind chainKind, ww, hh []int, iters int) error {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	tbl := table.NewWriter()
	tbl.SetTitle(fmt.Sprintf("%s chains", kind))
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "nodes", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			app := storage.NewAppStorage(storage.WithLogger(logrus.NewEntry(quiet)))
			app.CreateSingleton(storage.Value("src", 0))
			st := app.Instance()

			view := &counter{}
			view.id = st.Registry().Register(view)

			var nodes []node
			for i := 0; i < w; i++ {
				var last node
				if kind == linkChain {
					last, _ = storage.Link[int](st, "src", nil, "")
				} else {
					last, _ = storage.Prop[int](st, "src", nil, "")
				}
				nodes = append(nodes, last)
				for j := 1; j < h; j++ {
					last = kind.extend(last)
					nodes = append(nodes, last)
				}
				last.Subscribe(view)
			}

			tach := tachymeter.New(&tachymeter.Config{Size: iters})
			for i := 0; i < iters; i++ {
				start := time.Now()
				storage.Set(st, "src", i+1)
				tach.AddTime(time.Since(start))
			}
			if view.hit != w*iters {
				return fmt.Errorf("%s %d * %d: %d notifications, want %d", kind, w, h, view.hit, w*iters)
			}

			for i := len(nodes) - 1; i >= 0; i-- {
				nodes[i].AboutToBeDeleted()
			}
			st.Registry().Unregister(view.id)
			if !st.Delete("src") {
				return fmt.Errorf("%s %d * %d: src still has subscribers", kind, w, h)
			}
			app.AboutToBeDeleted()

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					humanize.Comma(int64(w * h)),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	tbl.Render()
	return nil
}
