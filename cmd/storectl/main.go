package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/delaneyj/appstate/persist"
	"github.com/delaneyj/appstate/storage"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	valuesKey   = "values"
	setKey      = "set"
	logLevelKey = "log-level"
	dbKey       = "db"
	fileKey     = "file"
	persistKey  = "persist"
)

func main() {
	common := []cli.Flag{
		&cli.StringFlag{
			Name:  valuesKey,
			Usage: "YAML mapping used to seed the store",
		},
		&cli.StringSliceFlag{
			Name:  setKey,
			Usage: "key=value applied after seeding, value is parsed as YAML",
		},
		&cli.StringFlag{
			Name:  logLevelKey,
			Usage: "logrus level",
			Value: "warn",
		},
	}

	cmd := &cli.Command{
		Name:  "storectl",
		Usage: "Inspect and persist application store contents",
		Commands: []*cli.Command{
			{
				Name:   "dump",
				Usage:  "Seed a store and print every key",
				Flags:  common,
				Action: dump,
			},
			{
				Name:  "persist",
				Usage: "Mirror keys to a backend and print what it holds",
				Flags: append(slices.Clone(common),
					&cli.StringFlag{
						Name:  dbKey,
						Usage: "SQLite database path",
					},
					&cli.StringFlag{
						Name:  fileKey,
						Usage: "YAML file path",
					},
					&cli.StringSliceFlag{
						Name:  persistKey,
						Usage: "Key to persist, may be repeated",
					},
				),
				Action: persistKeys,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cmd *cli.Command) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(cmd.String(logLevelKey))
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	return logrus.NewEntry(l).WithField("cmd", cmd.Name), nil
}

// seed builds the app store from --values.
func seed(cmd *cli.Command, log *logrus.Entry) (*storage.AppStorage, error) {
	var initial []storage.Initial
	if path := cmd.String(valuesKey); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		values := map[string]any{}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		for k, v := range values {
			initial = append(initial, initialOf(k, v))
		}
	}
	app := storage.NewAppStorage(storage.WithLogger(log))
	app.CreateSingleton(initial...)
	return app, nil
}

func applySets(cmd *cli.Command, st *storage.Store) error {
	for _, kv := range cmd.StringSlice(setKey) {
		k, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--set %q: want key=value", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("--set %q: %w", kv, err)
		}
		if !setAny(st, k, v) {
			return fmt.Errorf("--set %q rejected", kv)
		}
	}
	return nil
}

func dump(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	app, err := seed(cmd, log)
	if err != nil {
		return err
	}
	defer app.AboutToBeDeleted()

	st := app.Instance()
	if err := applySets(cmd, st); err != nil {
		return err
	}
	render(st, nil)
	return nil
}

func persistKeys(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}

	var backend persist.Backend
	switch db, file := cmd.String(dbKey), cmd.String(fileKey); {
	case db != "" && file != "":
		return errors.New("--db and --file are exclusive")
	case db != "":
		backend, err = persist.NewSQLiteBackend(db)
	case file != "":
		backend, err = persist.NewFileBackend(file)
	default:
		return errors.New("one of --db or --file is required")
	}
	if err != nil {
		return err
	}

	app, err := seed(cmd, log)
	if err != nil {
		backend.Close()
		return err
	}
	defer app.AboutToBeDeleted()
	st := app.Instance()

	ps := persist.New(st, backend, persist.WithLogger(log))
	defer ps.Close()

	for _, k := range cmd.StringSlice(persistKey) {
		v, _, ok := st.Inspect(k)
		if !ok {
			return fmt.Errorf("cannot persist %q: not in the store, seed it with --values", k)
		}
		if !persistAny(ps, k, v) {
			return fmt.Errorf("cannot persist %q", k)
		}
	}
	if err := applySets(cmd, st); err != nil {
		return err
	}

	sizes := map[string]uint64{}
	for _, k := range ps.Keys() {
		data, ok, err := backend.Load(k)
		if err != nil {
			return err
		}
		if ok {
			sizes[k] = uint64(len(data))
		}
	}
	render(st, sizes)
	return nil
}

func render(st *storage.Store, persisted map[string]uint64) {
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"key", "type", "value", "subscribers", "persisted"})
	for _, k := range slices.Sorted(st.Keys()) {
		v, subs, _ := st.Inspect(k)
		p := ""
		if size, ok := persisted[k]; ok {
			p = humanize.Bytes(size)
		}
		tbl.Append([]string{
			k,
			fmt.Sprintf("%T", v),
			fmt.Sprintf("%v", v),
			humanize.Comma(int64(subs)),
			p,
		})
	}
	tbl.Render()
	fmt.Printf("%s keys\n", humanize.Comma(int64(st.Size())))
}

// YAML scalars decode to these types; everything else is kept as any.

func initialOf(key string, v any) storage.Initial {
	switch x := v.(type) {
	case string:
		return storage.Value(key, x)
	case int:
		return storage.Value(key, x)
	case float64:
		return storage.Value(key, x)
	case bool:
		return storage.Value(key, x)
	default:
		return storage.Value(key, v)
	}
}

func setAny(st *storage.Store, key string, v any) bool {
	// YAML reads 19 as an int, even for a key seeded with 21.5
	if i, ok := v.(int); ok {
		if cur, _, found := st.Inspect(key); found {
			if _, isFloat := cur.(float64); isFloat {
				v = float64(i)
			}
		}
	}
	switch x := v.(type) {
	case string:
		return storage.SetOrCreate(st, key, x)
	case int:
		return storage.SetOrCreate(st, key, x)
	case float64:
		return storage.SetOrCreate(st, key, x)
	case bool:
		return storage.SetOrCreate(st, key, x)
	default:
		return storage.SetOrCreate(st, key, v)
	}
}

func persistAny(ps *persist.PersistentStorage, key string, v any) bool {
	switch x := v.(type) {
	case string:
		return persist.PersistProp(ps, key, x)
	case int:
		return persist.PersistProp(ps, key, x)
	case float64:
		return persist.PersistProp(ps, key, x)
	case bool:
		return persist.PersistProp(ps, key, x)
	default:
		return persist.PersistProp(ps, key, v)
	}
}
