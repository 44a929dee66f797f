package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docfill/internal/config"
	"github.com/dgallion1/docfill/internal/ooxml"
	"github.com/dgallion1/docfill/internal/personnel"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	case "add":
		err = cmdAdd(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "show":
		err = cmdShow(os.Args[2:])
	case "delete":
		err = cmdDelete(os.Args[2:])
	case "add-license":
		err = cmdAddLicense(os.Args[2:])
	case "capture-table":
		err = cmdCaptureTable(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `personnel: manage the employees named on reports

usage:
  personnel init          [-db path]
  personnel list          [-db path]
  personnel add           [-db path] -surname S -name N [-patronymic P] -team T -license L [-position P] [-license-number N]
  personnel import        [-db path] <employees.yaml>
  personnel show          [-db path] <id>
  personnel delete        [-db path] <id>
  personnel add-license   [-db path] -number N -license L -end YYYY-MM-DD
  personnel capture-table [-db path] [-table N] <id> <document.docx>

The database defaults to DATABASE_PATH.
capture-table stores top-level table N (default 0) of the document as the
instrument table printed on the employee's reports.
`)
}

// openStore parses the common -db flag and opens the store.
func openStore(fs *flag.FlagSet, args []string) (*personnel.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db := fs.String("db", cfg.DatabasePath, "path to the SQLite database")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return personnel.Open(context.Background(), *db, log)
}

func cmdInit(args []string) error {
	store, err := openStore(flag.NewFlagSet("init", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Println("personnel database ready")
	return nil
}

func cmdList(args []string) error {
	store, err := openStore(flag.NewFlagSet("list", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEAM\tNAME\tPOSITION\tLICENSE\tTABLE")
	for _, e := range list {
		table := "-"
		if e.InstrumentTable != "" {
			table = "yes"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", e.ID, e.TeamNumber, e.FullName(), e.Position, e.License, table)
	}
	return tw.Flush()
}

func cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	var e personnel.Employee
	fs.StringVar(&e.Surname, "surname", "", "surname")
	fs.StringVar(&e.Name, "name", "", "first name")
	fs.StringVar(&e.Patronymic, "patronymic", "", "patronymic")
	fs.IntVar(&e.TeamNumber, "team", 0, "team number")
	fs.StringVar(&e.Position, "position", "", "position (default "+personnel.DefaultPosition+")")
	fs.StringVar(&e.License, "license", "", "license description")
	fs.StringVar(&e.LicenseNumber, "license-number", "", "license number")

	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	added, err := store.Add(context.Background(), e)
	if err != nil {
		return err
	}
	fmt.Printf("added %d: %s (team %d)\n", added.ID, added.FullName(), added.TeamNumber)
	return nil
}

type importFile struct {
	Employees []personnel.Employee `yaml:"employees"`
}

// cmdImport adds every employee of a YAML file:
//
//	employees:
//	  - {surname: Иванов, name: Иван, patronymic: Петрович, team_number: 1, license: УЗК}
func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one YAML file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var f importFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", fs.Arg(0), err)
	}
	ctx := context.Background()
	for i, e := range f.Employees {
		added, err := store.Add(ctx, e)
		if err != nil {
			return fmt.Errorf("employee %d: %w", i+1, err)
		}
		fmt.Printf("added %d: %s\n", added.ID, added.FullName())
	}
	return nil
}

func cmdShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()
	if fs.NArg() != 1 {
		return fmt.Errorf("expected an employee id")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", fs.Arg(0))
	}

	ctx := context.Background()
	e, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	licenses, err := store.LicensesFor(ctx, e.LicenseNumber)
	if err != nil {
		return err
	}
	fmt.Printf("%s\nteam %d, %s\nlicense %s (%s)\n", e.FullName(), e.TeamNumber, e.Position, e.License, e.LicenseNumber)
	for _, l := range licenses {
		fmt.Printf("  %s until %s\n", l.License, l.EndDate.Format("02.01.2006"))
	}
	return nil
}

func cmdAddLicense(args []string) error {
	fs := flag.NewFlagSet("add-license", flag.ExitOnError)
	var l personnel.License
	fs.StringVar(&l.LicenseNumber, "number", "", "license number shared with employees")
	fs.StringVar(&l.License, "license", "", "license description")
	end := fs.String("end", "", "expiry date, YYYY-MM-DD")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	if l.EndDate, err = time.Parse("2006-01-02", *end); err != nil {
		return fmt.Errorf("invalid -end %q", *end)
	}
	added, err := store.AddLicense(context.Background(), l)
	if err != nil {
		return err
	}
	fmt.Printf("added license %d: %s until %s\n", added.ID, added.License, added.EndDate.Format("02.01.2006"))
	return nil
}

func cmdDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()
	if fs.NArg() != 1 {
		return fmt.Errorf("expected an employee id")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", fs.Arg(0))
	}
	return store.Delete(context.Background(), id)
}

func cmdCaptureTable(args []string) error {
	fs := flag.NewFlagSet("capture-table", flag.ExitOnError)
	index := fs.Int("table", 0, "zero-based index of the top-level table")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()
	if fs.NArg() != 2 {
		return fmt.Errorf("expected an employee id and a document")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", fs.Arg(0))
	}

	pkg, err := ooxml.OpenFile(fs.Arg(1))
	if err != nil {
		return err
	}
	tables := pkg.Document().Tables()
	if *index < 0 || *index >= len(tables) {
		return fmt.Errorf("document has %d tables, no table %d", len(tables), *index)
	}
	if err := store.SetInstrumentTable(context.Background(), id, ooxml.TableXML(tables[*index])); err != nil {
		return err
	}
	fmt.Printf("stored table %d of %s for employee %d\n", *index, fs.Arg(1), id)
	return nil
}
