package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chazu/talc/install"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native/closure"
)

var errBadEntry = errors.New("entry must look like Class>>selector or Class class>>selector")

// entryPoint names the unary message run sends.
type entryPoint struct {
	Class    string
	Side     model.Side
	Selector string
}

func (e entryPoint) String() string {
	if e.Side == model.ClassSide {
		return e.Class + " class>>" + e.Selector
	}
	return e.Class + ">>" + e.Selector
}

func parseEntry(s string) (entryPoint, error) {
	class, selector, ok := strings.Cut(strings.TrimSpace(s), ">>")
	if !ok || selector == "" || strings.ContainsAny(selector, ": ") {
		return entryPoint{}, fmt.Errorf("%w: %q", errBadEntry, s)
	}
	e := entryPoint{Selector: selector, Side: model.InstanceSide}
	fields := strings.Fields(class)
	switch {
	case len(fields) == 1:
		e.Class = fields[0]
	case len(fields) == 2 && fields[1] == "class":
		e.Class, e.Side = fields[0], model.ClassSide
	default:
		return entryPoint{}, fmt.Errorf("%w: %q", errBadEntry, s)
	}
	return e, nil
}

// runCommand processes `talc run`: the sources are generated into a
// function table and the entry message is sent. An instance-side entry is
// sent to a fresh instance.
func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	common := addCommonFlags(fs)
	entryFlag := fs.String("entry", "", "Entry message, e.g. 'Main class>>start' (default from talc.toml)")
	fs.Parse(args)

	m, err := common.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	if *entryFlag == "" {
		*entryFlag = m.Source.Entry
	}
	entry, err := parseEntry(*entryFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	files, err := sourceFiles(m, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	opts, err := m.GeneratorOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	table := closure.NewTable()
	reg := newRegistry()
	c := install.NewCollector()
	in := install.NewInstaller(reg,
		install.WithGlobals(globals(m)...),
		install.WithBackend(table, opts...))
	results, err := installFiles(in, c, files, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if code := report(c, results); code != 0 {
		return code
	}

	rt := closure.NewMapRuntime(table, os.Stdout, reg.Classes()...)
	result, err := send(rt, entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", entry, err)
		return 1
	}
	fmt.Println(closure.PrintString(result))
	return 0
}

func send(rt *closure.MapRuntime, entry entryPoint) (closure.Value, error) {
	meta, ok := rt.ClassObject(entry.Class)
	if !ok {
		return nil, fmt.Errorf("unknown class %s", entry.Class)
	}
	var receiver closure.Value = meta
	if entry.Side == model.InstanceSide {
		instance, err := rt.Send(nil, meta, "new", nil)
		if err != nil {
			return nil, err
		}
		receiver = instance
	}
	return rt.Send(nil, receiver, entry.Selector, nil)
}
