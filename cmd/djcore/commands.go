package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/hash"
	"github.com/koustreak/djcore/internal/schema"
	"github.com/koustreak/djcore/internal/server"
)

func (a *app) cmdExec(args []string) error {
	if len(args) == 0 {
		return usage("exec <sql> [args...]")
	}
	conn, closeConn, err := a.connect()
	if err != nil {
		return err
	}
	defer closeConn()

	n, err := conn.Execute(args[0], parseArgs(args[1:])...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%d row(s) affected\n", n)
	return nil
}

func (a *app) cmdFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	limit := fs.Int("limit", 0, "stop after n rows (0 reads everything)")
	format := fs.String("format", "json", "output format: json or table")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}
	if fs.NArg() == 0 {
		return usage("fetch [-limit n] [-format json|table] <sql> [args...]")
	}
	if *format != "json" && *format != "table" {
		return usage("unknown format %q", *format)
	}

	conn, closeConn, err := a.connect()
	if err != nil {
		return err
	}
	defer closeConn()

	cur, err := conn.Fetch(fs.Arg(0), parseArgs(fs.Args()[1:])...)
	if err != nil {
		return err
	}
	defer cur.Close()

	var out rowWriter
	if *format == "table" {
		out = newTableWriter(a.stdout)
	} else {
		out = jsonWriter{enc: json.NewEncoder(a.stdout)}
	}
	for row, err := range cur.All() {
		if err != nil {
			return err
		}
		if *limit > 0 && cur.Rows() > *limit {
			break
		}
		if err := out.write(row); err != nil {
			return err
		}
	}
	return out.flush()
}

type rowWriter interface {
	write(row *core.Row) error
	flush() error
}

// jsonWriter prints one JSON object per row.
type jsonWriter struct {
	enc *json.Encoder
}

func (w jsonWriter) write(row *core.Row) error {
	m, err := row.ToValueMap()
	if err != nil {
		return err
	}
	obj := make(map[string]any, len(m))
	for k, v := range m {
		obj[k] = cell(v)
	}
	return w.enc.Encode(obj)
}

func (jsonWriter) flush() error { return nil }

type tableWriter struct {
	tw     *tabwriter.Writer
	header bool
}

func newTableWriter(out io.Writer) *tableWriter {
	return &tableWriter{tw: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)}
}

func (w *tableWriter) write(row *core.Row) error {
	cols, err := row.Columns()
	if err != nil {
		return err
	}
	fields := make([]string, len(cols))
	if !w.header {
		for i, c := range cols {
			fields[i] = c.Name()
		}
		fmt.Fprintln(w.tw, strings.Join(fields, "\t"))
		w.header = true
	}
	for i, c := range cols {
		v, err := row.Decode(c)
		if err != nil {
			fields[i] = "<" + err.Error() + ">"
			continue
		}
		fields[i] = fmt.Sprint(cell(v))
	}
	fmt.Fprintln(w.tw, strings.Join(fields, "\t"))
	return nil
}

func (w *tableWriter) flush() error { return w.tw.Flush() }

// cell renders a decoded value for output.
func cell(v core.Value) any {
	switch x := v.(type) {
	case core.Null:
		return nil
	case core.DecodeFailure:
		return "<" + x.Err.Error() + ">"
	case core.Bytes:
		return fmt.Sprintf("0x%x", []byte(x))
	}
	return v.Interface()
}

func (a *app) cmdTables(args []string) error {
	fs := flag.NewFlagSet("tables", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	schemaName := fs.String("schema", "", "schema to list (default: the configured database, or public)")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}

	conn, closeConn, err := a.connect()
	if err != nil {
		return err
	}
	defer closeConn()

	reader, err := schema.New(conn)
	if err != nil {
		return err
	}
	name := *schemaName
	if name == "" {
		if name, err = schema.DefaultSchema(conn); err != nil {
			return err
		}
	}

	if fs.NArg() > 0 {
		info, err := reader.InspectTable(name, fs.Arg(0))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "column\ttype\tnull\tkey\tdefault")
		for _, c := range info.Columns {
			key := ""
			switch {
			case c.IsPrimaryKey:
				key = "PRI"
			case c.IsUnique:
				key = "UNI"
			}
			def := ""
			if c.DefaultValue != nil {
				def = *c.DefaultValue
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", c.Name, c.DataType, c.IsNullable, key, def)
		}
		return tw.Flush()
	}

	tables, err := reader.ListTables(name)
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Fprintln(a.stdout, t)
	}
	return nil
}

func (a *app) cmdHash(args []string) error {
	if len(args) == 0 {
		return usage("hash <file|->...")
	}
	for _, p := range args {
		if p == "-" {
			id, err := hash.UUIDFromStream(a.stdin)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s  -\n", id)
			continue
		}
		id, err := hash.UUIDFromFile(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s  %s\n", id, p)
	}
	return nil
}

func (a *app) cmdAttach(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("attach put <file> | get [-o out] <id> | url <id> | list")
	}
	att, closeStore, err := a.attachments(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	switch sub, rest := args[0], args[1:]; sub {
	case "put":
		if len(rest) != 1 {
			return usage("attach put <file>")
		}
		id, err := att.PutFile(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, id)
		return nil

	case "get":
		fs := flag.NewFlagSet("attach get", flag.ContinueOnError)
		fs.SetOutput(a.stderr)
		out := fs.String("o", "", "write to this file instead of stdout")
		if err := fs.Parse(rest); err != nil {
			return usage("%v", err)
		}
		if fs.NArg() != 1 {
			return usage("attach get [-o out] <id>")
		}
		id, err := hash.Parse(fs.Arg(0))
		if err != nil {
			return err
		}
		if *out == "" {
			_, err = att.Download(ctx, id, a.stdout)
			return err
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if _, err := att.Download(ctx, id, f); err != nil {
			f.Close()
			os.Remove(*out)
			return err
		}
		return f.Close()

	case "url":
		if len(rest) != 1 {
			return usage("attach url <id>")
		}
		id, err := hash.Parse(rest[0])
		if err != nil {
			return err
		}
		u, err := att.Presign(ctx, id, time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, u)
		return nil

	case "list":
		ids, err := att.List(ctx, 0)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(a.stdout, id)
		}
		return nil
	}
	return usage("unknown attach command %q", args[0])
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}

	conn, closeConn, err := a.connect()
	if err != nil {
		return err
	}
	defer closeConn()

	opts := []server.Option{server.WithLogger(a.log)}
	if a.store != nil || a.cfg.ExternalEnabled() {
		att, closeStore, err := a.attachments(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		opts = append(opts, server.WithAttachments(att))
	}

	srvCfg := a.cfg.Server
	srvCfg.Addr = *addr
	return server.New(conn, opts...).ListenAndServe(ctx, srvCfg)
}
