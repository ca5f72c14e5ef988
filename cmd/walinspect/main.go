// Command walinspect is a read-only interactive browser over a WAL file's
// decoded markers, for operators diagnosing a recovery run without having
// to re-run recovery itself.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/voxstore/voxdb/internal/logger"
	"github.com/voxstore/voxdb/internal/wal"
)

func main() {
	path := flag.String("file", "", "WAL file to inspect")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: walinspect -file <path>")
		os.Exit(2)
	}

	logr := logger.New(os.Stderr, logger.LevelWarn, "[walinspect]")
	reader := wal.NewReader(*path, logr)
	if err := reader.Open(); err != nil {
		log.Fatalf("walinspect: open %s: %v", *path, err)
	}
	defer reader.Close()

	fmt.Printf("inspecting %s — commands: next [n], filter <TYPE>, reset, quit\n", *path)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	browser := &browser{reader: reader, path: *path, logger: logr}
	for {
		input, err := line.Prompt("walinspect> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return
			}
			log.Fatalf("walinspect: read command: %v", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !browser.dispatch(input) {
			return
		}
	}
}

// browser holds the one piece of session state a REPL over an otherwise
// stateless sequential reader needs: which marker type, if any, to skip
// past while stepping.
type browser struct {
	reader *wal.Reader
	path   string
	logger *logger.Logger
	filter string
}

func (b *browser) dispatch(input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "quit", "exit", "q":
		return false

	case "reset":
		b.reader.Close()
		b.reader = wal.NewReader(b.path, b.logger)
		if err := b.reader.Open(); err != nil {
			fmt.Printf("reset failed: %v\n", err)
		}
		return true

	case "filter":
		if len(fields) < 2 {
			b.filter = ""
			fmt.Println("filter cleared")
			return true
		}
		b.filter = strings.ToUpper(fields[1])
		fmt.Printf("filtering to %s markers\n", b.filter)
		return true

	case "next", "n":
		count := 1
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				count = n
			}
		}
		b.printNext(count)
		return true

	default:
		fmt.Printf("unknown command %q (try: next [n], filter <TYPE>, reset, quit)\n", fields[0])
		return true
	}
}

func (b *browser) printNext(count int) {
	printed := 0
	for printed < count {
		m, err := b.reader.Next()
		if err != nil {
			fmt.Printf("read error: %v\n", err)
			return
		}
		if m == nil {
			fmt.Println("(end of file)")
			return
		}
		if b.filter != "" && m.Type.String() != b.filter {
			continue
		}
		printMarker(m)
		printed++
	}
}

func printMarker(m *wal.Marker) {
	fmt.Printf("tick=%d type=%s", m.Tick, m.Type)
	if m.DatabaseID != 0 {
		fmt.Printf(" database=%d", m.DatabaseID)
	}
	if m.CollectionID != 0 {
		fmt.Printf(" cid=%d", m.CollectionID)
	}
	if m.IndexID != 0 {
		fmt.Printf(" iid=%d", m.IndexID)
	}
	if m.TransactionID != 0 {
		fmt.Printf(" tid=%d", m.TransactionID)
	}
	if len(m.Document) > 0 {
		fmt.Printf(" document=%s", m.Document)
	}
	if m.Object != nil {
		if data, ok := m.Object.GetObject("data"); ok {
			if name, ok := data.GetString("name"); ok {
				fmt.Printf(" name=%q", name)
			}
		}
	}
	fmt.Println()
}
