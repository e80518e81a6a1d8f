// Command keydb-tool is offline, ambient tooling around a data
// directory: it drives rdb, aof, and migrations directly, without a
// running server (spec.md's out-of-scope command dispatcher is never
// invoked here). Grounded on the urfave/cli hack-tool shape of
// cmd/hack/hack.go: a flat subcommand list plus a liner REPL for
// ad-hoc inspection, colored with fatih/color, tabulated with
// olekukonko/tablewriter, bannered with logrusorgru/aurora.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"github.com/urfave/cli"

	"github.com/coreworks/memkv/aof"
	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/migrations"
	"github.com/coreworks/memkv/rdb"
	"github.com/coreworks/memkv/types"
)

func main() {
	app := cli.NewApp()
	app.Name = "keydb-tool"
	app.Usage = "offline inspection and maintenance for a keyspace data directory"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "data-dir", Value: "./data", Usage: "directory holding dump.rdb / appendonly.aof"},
		cli.IntFlag{Name: "databases", Value: 16, Usage: "number of logical databases"},
	}
	app.Commands = []cli.Command{
		checkRDBCommand(),
		checkAOFCommand(),
		migrateCommand(),
		replCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func dataDir(c *cli.Context) string {
	if c.String("data-dir") != "" {
		return c.String("data-dir")
	}
	return c.GlobalString("data-dir")
}

func checkRDBCommand() cli.Command {
	return cli.Command{
		Name:  "check-rdb",
		Usage: "load the snapshot and report its key counts, without starting a server",
		Action: func(c *cli.Context) error {
			path := dataDir(c) + "/dump.rdb"
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			cfg := config.Default()
			cfg.DBNum = c.GlobalInt("databases")
			dbs := make([]*database.DB, cfg.DBNum)
			for i := range dbs {
				dbs[i] = database.New(i)
			}
			dbByID := func(id int) *database.DB {
				if id < 0 || id >= len(dbs) {
					return nil
				}
				return dbs[id]
			}

			if err := rdb.Load(f, dbByID, cfg); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"db", "keys"})
			for i, db := range dbs {
				if db.Size() == 0 {
					continue
				}
				table.Append([]string{strconv.Itoa(i), strconv.Itoa(db.Size())})
			}
			fmt.Println(color.GreenString("%s: snapshot is well-formed", path))
			table.Render()
			return nil
		},
	}
}

// countingDispatcher implements aof.Dispatcher without decoding
// command semantics: it only tracks total record count and whether the
// log ends mid-MULTI, the one piece of replay state aof.Load itself
// relies on (the command table that would actually apply these
// records is the out-of-scope dispatcher's, spec.md §1).
type countingDispatcher struct {
	commands int
	inMulti  bool
}

func (c *countingDispatcher) Dispatch(dbID int, args [][]byte) error {
	c.commands++
	if len(args) > 0 {
		switch strings.ToUpper(string(args[0])) {
		case "MULTI":
			c.inMulti = true
		case "EXEC", "DISCARD":
			c.inMulti = false
		}
	}
	return nil
}

func (c *countingDispatcher) InMulti() bool { return c.inMulti }

func checkAOFCommand() cli.Command {
	return cli.Command{
		Name:  "check-aof",
		Usage: "parse the append-only log and report its record count",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "fix", Usage: "truncate a corrupt trailing record instead of failing"},
		},
		Action: func(c *cli.Context) error {
			path := dataDir(c) + "/appendonly.aof"
			dispatch := &countingDispatcher{}
			if err := aof.Load(path, dispatch, c.Bool("fix")); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Println(color.GreenString("%s: %d records, well-formed", path, dispatch.commands))
			return nil
		},
	}
}

func migrateCommand() cli.Command {
	return cli.Command{
		Name:  "migrate",
		Usage: "apply pending data-directory migrations",
		Action: func(c *cli.Context) error {
			return migrations.NewMigrator().Apply(dataDir(c))
		},
	}
}

func replCommand() cli.Command {
	return cli.Command{
		Name:  "repl",
		Usage: "interactive read-only inspection of a restored data directory",
		Action: func(c *cli.Context) error {
			return runRepl(dataDir(c), c.GlobalInt("databases"))
		},
	}
}

func runRepl(dir string, dbNum int) error {
	cfg := config.Default()
	cfg.DBNum = dbNum
	dbs := make([]*database.DB, dbNum)
	ops := make([]*types.Ops, dbNum)
	for i := range dbs {
		dbs[i] = database.New(i)
		ops[i] = &types.Ops{DB: dbs[i], Cfg: cfg}
	}
	if f, err := os.Open(dir + "/dump.rdb"); err == nil {
		defer f.Close()
		dbByID := func(id int) *database.DB {
			if id < 0 || id >= len(dbs) {
				return nil
			}
			return dbs[id]
		}
		if err := rdb.Load(f, dbByID, cfg); err != nil {
			return err
		}
	}

	fmt.Println(aurora.Bold(aurora.Cyan("keydb-tool")), "— read-only REPL over", dir)
	fmt.Println("commands: dbsize <n> | keys <n> <pattern> | get <n> <key> | type <n> <key> | quit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("keydb> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		line.AppendHistory(input)
		if err := runReplCommand(ops, dbs, strings.Fields(input)); err != nil {
			fmt.Println(color.RedString(err.Error()))
		}
	}
}

func runReplCommand(ops []*types.Ops, dbs []*database.DB, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		os.Exit(0)
	case "dbsize":
		db, err := selectDB(dbs, fields, 1)
		if err != nil {
			return err
		}
		fmt.Println(db.Size())
	case "keys":
		if len(fields) != 3 {
			return fmt.Errorf("usage: keys <n> <pattern>")
		}
		db, err := selectDB(dbs, fields, 1)
		if err != nil {
			return err
		}
		for _, k := range db.Keys(fields[2]) {
			fmt.Println(k)
		}
	case "get":
		if len(fields) != 3 {
			return fmt.Errorf("usage: get <n> <key>")
		}
		o, err := selectOps(ops, fields, 1)
		if err != nil {
			return err
		}
		val, ok, err := o.String().Get(fields[2])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(color.YellowString("(nil)"))
			return nil
		}
		fmt.Println(string(val))
	case "type":
		if len(fields) != 3 {
			return fmt.Errorf("usage: type <n> <key>")
		}
		db, err := selectDB(dbs, fields, 1)
		if err != nil {
			return err
		}
		v, ok := db.LookupForRead(fields[2], true)
		if !ok {
			fmt.Println("none")
			return nil
		}
		fmt.Println(v.Type.String())
	default:
		return fmt.Errorf("unrecognized command %q", fields[0])
	}
	return nil
}

func selectDB(dbs []*database.DB, fields []string, idx int) (*database.DB, error) {
	n, err := strconv.Atoi(fields[idx])
	if err != nil || n < 0 || n >= len(dbs) {
		return nil, fmt.Errorf("bad database index %q", fields[idx])
	}
	return dbs[n], nil
}

func selectOps(ops []*types.Ops, fields []string, idx int) (*types.Ops, error) {
	n, err := strconv.Atoi(fields[idx])
	if err != nil || n < 0 || n >= len(ops) {
		return nil, fmt.Errorf("bad database index %q", fields[idx])
	}
	return ops[n], nil
}
