package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"

	"rocksniff/attach"
	"rocksniff/hexdump"
	"rocksniff/process"
	"rocksniff/process/memory_map"
	"rocksniff/process_blob"
	"rocksniff/scanner"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	processFlag := flag.String("process", "", "Process name to attach to")
	fromFlag := flag.String("from", "", "Scan a saved dump instead of a live process")
	aobFlag := flag.String("aob", "", "Array of bytes to scan for (e.g., '48,49,52,43,??,uint32:1234')")
	startFlag := flag.String("start", "0", "Lowest address to scan")
	endFlag := flag.String("end", "", "Address to stop scanning at (default: end of address space)")
	limitFlag := flag.Int("limit", 32, "Maximum matches to dump")
	flag.Parse()

	if *aobFlag == "" {
		fmt.Println("Error: --aob is required")
		flag.Usage()
		os.Exit(1)
	}

	aob, err := scanner.ParseAOB(*aobFlag)
	if err != nil {
		fmt.Printf("Error parsing AOB: %v\n", err)
		os.Exit(1)
	}

	start, err := parseAddr(*startFlag, 0)
	if err != nil {
		fmt.Printf("Error: --start: %v\n", err)
		os.Exit(1)
	}
	end, err := parseAddr(*endFlag, math.MaxUint64)
	if err != nil {
		fmt.Printf("Error: --end: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mem, err := open(ctx, *pidFlag, *processFlag, *fromFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	defer mem.Close()

	fmt.Printf("Scanning process %d for pattern: %s\n", mem.GetPID(), scanner.FormatAOB(aob))

	matches, err := scanner.ScanPattern(ctx, mem, aob, start, end, 0)
	if err != nil {
		fmt.Printf("Error scanning memory: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d matches:\n", len(matches))

	regions, _ := mem.Regions()
	memory_map.Sort(regions)

	for i, match := range matches {
		if i == *limitFlag {
			fmt.Printf("... %d more\n", len(matches)-i)
			break
		}
		fmt.Printf("Match at %s:\n", match.ToString())

		// 16 bytes of context before, the rest after.
		ctxStart := match
		if uint64(match) >= 16 {
			ctxStart = match - 16
		}
		size := max(48, 32+len(aob.Pattern))
		data, err := mem.ReadMemory(ctxStart, process.ProcessMemorySize(size))
		if len(data) == 0 {
			fmt.Printf("  unreadable: %v\n", err)
			continue
		}

		opts := hexdump.DefaultOptions()
		opts.Base = uint64(ctxStart)
		opts.Marks = []hexdump.Mark{{Off: int(match - ctxStart), Len: len(aob.Pattern)}}
		opts.Regions = regions
		fmt.Print(hexdump.Dump(data, opts))
	}
}

func open(ctx context.Context, pid int, name, from string) (process.MemoryAccess, error) {
	switch {
	case from != "":
		im, err := process_blob.Load(from)
		if err != nil {
			return nil, fmt.Errorf("loading dump from %s: %w", from, err)
		}
		return im, nil
	case pid != 0:
		return attach.Open(process.ProcessID(pid), name)
	case name != "":
		mem, _, err := attach.ByName(ctx, name)
		return mem, err
	}
	return nil, fmt.Errorf("one of --pid, --process or --from is required")
}

func parseAddr(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 0, 64)
}
