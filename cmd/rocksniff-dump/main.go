package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"rocksniff/attach"
	"rocksniff/process"
	"rocksniff/process_blob"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	processFlag := flag.String("process", "Rocksmith2014.exe", "Process name to attach to when --pid is not given")
	outputFlag := flag.String("output", "", "Output directory for the dump")
	allFlag := flag.Bool("all", false, "Save all memory regions (including mmapped files)")
	flag.Parse()

	if *outputFlag == "" {
		fmt.Println("Error: --output is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		mem  process.MemoryAccess
		name = *processFlag
		err  error
	)
	if *pidFlag != 0 {
		mem, err = attach.Open(process.ProcessID(*pidFlag), name)
	} else {
		var info process.ProcessInfo
		mem, info, err = attach.ByName(ctx, name)
		name = info.Name
	}
	if err != nil {
		fmt.Printf("Error attaching: %v\n", err)
		os.Exit(1)
	}
	defer mem.Close()

	fmt.Printf("Attached to process %d\n", mem.GetPID())
	fmt.Printf("Saving dump to %s...\n", *outputFlag)

	stats, err := process_blob.Save(ctx, mem, *outputFlag, process_blob.SaveOptions{Name: name, All: *allFlag})
	if err != nil {
		fmt.Printf("Error saving dump: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Saved %d regions (skipped %d unreadable, %d too large, %d file-backed, %d read errors)\n",
		stats.Saved, stats.NotReadable, stats.TooLarge, stats.FileBacked, stats.ReadErrors)
}
